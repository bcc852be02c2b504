package cassandra

import (
	"context"
	"fmt"
	log "log/slog"

	"github.com/gocql/gocql"

	localstore "github.com/sharedcode/localstore"
	"github.com/sharedcode/localstore/query"
	"github.com/sharedcode/localstore/targetcache"
)

const reservedTargetIDs = 2

// targetTable is a durable targetcache.Cache backed by the targets table.
// allocateTargetID and the matching-keys index are kept in process memory
// (targets are a single-client, in-process concern even in the persistent
// regime); only the QueryData registration itself is durable.
type targetTable struct {
	nextTargetID int
	matchingKeys map[int]map[localstore.DocumentKey]bool
}

// NewTargetTable returns a targetcache.Cache backed by the targets table.
func NewTargetTable() targetcache.Cache {
	return &targetTable{
		nextTargetID: reservedTargetIDs,
		matchingKeys: make(map[int]map[localstore.DocumentKey]bool),
	}
}

func (t *targetTable) AllocateTargetID() int {
	id := t.nextTargetID
	t.nextTargetID++
	return id
}

func (t *targetTable) AddQueryData(data targetcache.QueryData) {
	data.Active = true
	t.upsert(data)
	if _, ok := t.matchingKeys[data.TargetID]; !ok {
		t.matchingKeys[data.TargetID] = make(map[localstore.DocumentKey]bool)
	}
}

func (t *targetTable) UpdateQueryData(data targetcache.QueryData) {
	if existing, ok := t.GetQueryDataByTargetID(data.TargetID); ok && len(data.ResumeToken) == 0 {
		data.ResumeToken = existing.ResumeToken
	}
	t.upsert(data)
}

func (t *targetTable) Deactivate(targetID int) {
	data, ok := t.GetQueryDataByTargetID(targetID)
	if !ok {
		return
	}
	data.Active = false
	t.upsert(data)
}

func (t *targetTable) upsert(data targetcache.QueryData) {
	if connection == nil {
		return
	}
	qry := connection.Session.Query(
		fmt.Sprintf("INSERT INTO %s.targets (target_id, canonical_id, purpose, sequence_number, snapshot_version, resume_token, active) VALUES (?,?,?,?,?,?,?);", connection.Config.Keyspace),
		data.TargetID, data.Query.CanonicalID(), int(data.Purpose), data.SequenceNumber, int64(data.SnapshotVersion), data.ResumeToken, data.Active,
	).WithContext(context.Background())
	if connection.Config.ConsistencyBook.TargetsWrite > gocql.Any {
		qry.Consistency(connection.Config.ConsistencyBook.TargetsWrite)
	}
	if err := qry.Exec(); err != nil {
		log.Error(fmt.Sprintf("targets: upsert(%d) failed: %v", data.TargetID, err))
	}
}

func (t *targetTable) RemoveQueryData(targetID int) {
	delete(t.matchingKeys, targetID)
	if connection == nil {
		return
	}
	qry := connection.Session.Query(
		fmt.Sprintf("DELETE FROM %s.targets WHERE target_id = ?;", connection.Config.Keyspace),
		targetID).WithContext(context.Background())
	if err := qry.Exec(); err != nil {
		log.Error(fmt.Sprintf("targets: RemoveQueryData(%d) failed: %v", targetID, err))
	}
}

// GetQueryData is a full-table scan for the row whose stored canonical id
// matches q; the matching-keys companion index only the query carries
// around in process memory could make this an indexed lookup instead.
func (t *targetTable) GetQueryData(q query.Query) (targetcache.QueryData, bool) {
	if connection == nil {
		return targetcache.QueryData{}, false
	}
	iter := connection.Session.Query(
		fmt.Sprintf("SELECT target_id, canonical_id, purpose, sequence_number, snapshot_version, resume_token, active FROM %s.targets;", connection.Config.Keyspace),
	).WithContext(context.Background()).Iter()
	defer iter.Close()

	var targetID int
	var canonicalID string
	var purpose int
	var seq int64
	var version int64
	var resumeToken []byte
	var active bool
	for iter.Scan(&targetID, &canonicalID, &purpose, &seq, &version, &resumeToken, &active) {
		if canonicalID != q.CanonicalID() {
			continue
		}
		return targetcache.QueryData{
			TargetID: targetID, Query: q, Purpose: targetcache.Purpose(purpose),
			SequenceNumber: seq, SnapshotVersion: localstore.SnapshotVersion(version),
			ResumeToken: resumeToken, Active: active,
		}, true
	}
	return targetcache.QueryData{}, false
}

func (t *targetTable) GetQueryDataByTargetID(targetID int) (targetcache.QueryData, bool) {
	if connection == nil {
		return targetcache.QueryData{}, false
	}
	var canonicalID string
	var purpose int
	var seq int64
	var version int64
	var resumeToken []byte
	var active bool
	qry := connection.Session.Query(
		fmt.Sprintf("SELECT canonical_id, purpose, sequence_number, snapshot_version, resume_token, active FROM %s.targets WHERE target_id = ?;", connection.Config.Keyspace),
		targetID).WithContext(context.Background())
	if err := qry.Scan(&canonicalID, &purpose, &seq, &version, &resumeToken, &active); err != nil {
		return targetcache.QueryData{}, false
	}
	return targetcache.QueryData{
		TargetID: targetID, Purpose: targetcache.Purpose(purpose),
		SequenceNumber: seq, SnapshotVersion: localstore.SnapshotVersion(version),
		ResumeToken: resumeToken, Active: active,
	}, true
}

func (t *targetTable) AddMatchingKeys(keys []localstore.DocumentKey, targetID int) {
	set, ok := t.matchingKeys[targetID]
	if !ok {
		set = make(map[localstore.DocumentKey]bool)
		t.matchingKeys[targetID] = set
	}
	for _, key := range keys {
		set[key] = true
	}
}

func (t *targetTable) RemoveMatchingKeys(keys []localstore.DocumentKey, targetID int) {
	set := t.matchingKeys[targetID]
	for _, key := range keys {
		delete(set, key)
	}
}

func (t *targetTable) GetMatchingKeysForTargetID(targetID int) map[localstore.DocumentKey]bool {
	out := make(map[localstore.DocumentKey]bool, len(t.matchingKeys[targetID]))
	for k := range t.matchingKeys[targetID] {
		out[k] = true
	}
	return out
}

func (t *targetTable) ContainsKey(key localstore.DocumentKey) bool {
	for _, set := range t.matchingKeys {
		if set[key] {
			return true
		}
	}
	return false
}
