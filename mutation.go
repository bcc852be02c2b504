package localstore

import "time"

// MutationType tags a Mutation variant.
type MutationType int

const (
	// MutationSet replaces a document's fields wholesale.
	MutationSet MutationType = iota
	// MutationPatch merges fields under a field mask; invisible if the
	// target has no materialized document ("blind patch").
	MutationPatch
	// MutationDelete produces a tombstone.
	MutationDelete
	// MutationTransform applies opaque field transforms (increment,
	// array-union, server-timestamp, ...); semantics owned by a collaborator.
	MutationTransform
)

// PreconditionKind tags a Precondition variant. A tagged variant (not a
// nullable object) so "no precondition" is distinct from exists(false).
type PreconditionKind int

const (
	// PreconditionNone means the mutation applies unconditionally.
	PreconditionNone PreconditionKind = iota
	// PreconditionExists requires the document's existence to match Exists.
	PreconditionExists
	// PreconditionUpdateTime requires the document's version to equal UpdateTime.
	PreconditionUpdateTime
)

// Precondition gates whether a mutation is considered feasible against a
// given document state.
type Precondition struct {
	Kind       PreconditionKind
	Exists     bool
	UpdateTime SnapshotVersion
}

// NoPrecondition is the zero-value, unconditional precondition.
var NoPrecondition = Precondition{Kind: PreconditionNone}

// ExistsPrecondition builds an existence precondition.
func ExistsPrecondition(exists bool) Precondition {
	return Precondition{Kind: PreconditionExists, Exists: exists}
}

// UpdateTimePrecondition builds an update-time precondition.
func UpdateTimePrecondition(v SnapshotVersion) Precondition {
	return Precondition{Kind: PreconditionUpdateTime, UpdateTime: v}
}

// IsFeasible reports whether the precondition is satisfied by the given
// (possibly overlaid) document state.
func (p Precondition) IsFeasible(current MaybeDocument, exists bool) bool {
	switch p.Kind {
	case PreconditionExists:
		return exists == p.Exists
	case PreconditionUpdateTime:
		return exists && current.Version == p.UpdateTime
	default:
		return true
	}
}

// FieldTransform is one opaque field-level transform operation; its
// resolution (increment, array-union, server-timestamp, ...) is a
// collaborator concern.
type FieldTransform struct {
	Field string
	Op    string
	Value Value
}

// TransformApplier resolves FieldTransforms against a document's current
// fields. Value encoding/merge semantics of individual transforms are out
// of scope for LocalStore itself; this interface is the seam a collaborator
// implements. DefaultTransformApplier is used when none is configured.
type TransformApplier interface {
	Apply(current Fields, transforms []FieldTransform) Fields
}

// DefaultTransformApplier treats each transform's Value as an already-
// resolved replacement value for Field — a minimal, deterministic stand-in
// used when no domain-specific applier (increment, array-union, ...) has
// been wired in.
type DefaultTransformApplier struct{}

// Apply implements TransformApplier.
func (DefaultTransformApplier) Apply(current Fields, transforms []FieldTransform) Fields {
	out := current.Clone()
	if out == nil {
		out = make(Fields, len(transforms))
	}
	for _, t := range transforms {
		out[t.Field] = t.Value
	}
	return out
}

// Mutation is one pending write against a single document key.
type Mutation struct {
	Type         MutationType
	Key          DocumentKey
	Fields       Fields           // Set
	Mask         []string         // Patch: which fields of Fields to merge
	Transforms   []FieldTransform // Transform
	Precondition Precondition
}

// SetMutation builds a Set mutation.
func SetMutation(key DocumentKey, fields Fields, precondition Precondition) Mutation {
	return Mutation{Type: MutationSet, Key: key, Fields: fields, Precondition: precondition}
}

// PatchMutation builds a Patch mutation.
func PatchMutation(key DocumentKey, mask []string, fields Fields, precondition Precondition) Mutation {
	return Mutation{Type: MutationPatch, Key: key, Mask: mask, Fields: fields, Precondition: precondition}
}

// DeleteMutation builds a Delete mutation.
func DeleteMutation(key DocumentKey, precondition Precondition) Mutation {
	return Mutation{Type: MutationDelete, Key: key, Precondition: precondition}
}

// TransformMutation builds a Transform mutation.
func TransformMutation(key DocumentKey, transforms []FieldTransform, precondition Precondition) Mutation {
	return Mutation{Type: MutationTransform, Key: key, Transforms: transforms, Precondition: precondition}
}

// ApplyOverlay applies this mutation's local-overlay effect on top of
// (current, exists). The result's Version is always MinSnapshotVersion: overlays only ever
// represent pending, unacknowledged state. Returns ok=false when the
// mutation has no visible effect (a blind patch, a skipped transform, or
// a failed precondition), in which case (current, exists) is unchanged.
// Exported for localdocuments.View, the collaborator that folds a batch's
// mutations over the remote baseline.
func (m Mutation) ApplyOverlay(key DocumentKey, current MaybeDocument, exists bool, applier TransformApplier) (result MaybeDocument, ok bool) {
	if !m.Precondition.IsFeasible(current, exists) {
		return current, false
	}
	switch m.Type {
	case MutationSet:
		return NewDocument(key, MinSnapshotVersion, m.Fields.Clone(), true), true
	case MutationPatch:
		if !exists {
			// Blind patch: queued but invisible.
			return current, false
		}
		merged := current.Fields.Clone()
		if merged == nil {
			merged = make(Fields, len(m.Mask))
		}
		for _, field := range m.Mask {
			if v, present := m.Fields[field]; present {
				merged[field] = v
			} else {
				delete(merged, field)
			}
		}
		return NewDocument(key, MinSnapshotVersion, merged, true), true
	case MutationDelete:
		return NewNoDocument(key, MinSnapshotVersion, true), true
	case MutationTransform:
		if !exists || current.Type != DocumentTypeDocument {
			// Applied only after the previous step materialized a document;
			// otherwise skipped.
			return current, false
		}
		if applier == nil {
			applier = DefaultTransformApplier{}
		}
		merged := applier.Apply(current.Fields, m.Transforms)
		return NewDocument(key, MinSnapshotVersion, merged, true), true
	default:
		return current, false
	}
}

// MutationBatch is an ordered log of mutations issued together.
type MutationBatch struct {
	BatchID        int64
	LocalWriteTime time.Time
	Mutations      []Mutation
}

// Keys returns the union of all mutation target keys in this batch, in
// first-seen order.
func (b MutationBatch) Keys() []DocumentKey {
	seen := make(map[DocumentKey]bool, len(b.Mutations))
	keys := make([]DocumentKey, 0, len(b.Mutations))
	for _, m := range b.Mutations {
		if !seen[m.Key] {
			seen[m.Key] = true
			keys = append(keys, m.Key)
		}
	}
	return keys
}

// MutationsFor returns this batch's mutations touching the given key, in
// the order they were added to the batch.
func (b MutationBatch) MutationsFor(key DocumentKey) []Mutation {
	var out []Mutation
	for _, m := range b.Mutations {
		if m.Key == key {
			out = append(out, m)
		}
	}
	return out
}

// MutationResult carries one mutation's server-committed outcome, used by
// acknowledgeBatch. Only Set/Delete/Transform mutations
// produce a value; Patch mutations leave HasValue false, per the literal
// acknowledgeBatch step 2 text.
type MutationResult struct {
	HasValue     bool
	IsNoDocument bool
	Fields       Fields
}

// AcknowledgeBatchResult is the input to LocalStore.AcknowledgeBatch.
type AcknowledgeBatchResult struct {
	Batch           MutationBatch
	CommitVersion   SnapshotVersion
	MutationResults []MutationResult
	StreamToken     []byte
}
