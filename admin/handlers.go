package admin

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	localstore "github.com/sharedcode/localstore"
	"github.com/sharedcode/localstore/store"
)

type diagnosticsAPI struct {
	store *store.LocalStore
}

func newDiagnosticsAPI(s *store.LocalStore) *diagnosticsAPI {
	return &diagnosticsAPI{store: s}
}

// GetStats godoc
// @Summary GetStats returns the coordinator's current bookkeeping snapshot
// @Schemes
// @Description GetStats responds with queue depth, referenced-key count, and GC mode as JSON.
// @Tags Diagnostics
// @Produce json
// @Success 200 {object} store.Stats
// @Router /stats [get]
// @Security Bearer
func (d *diagnosticsAPI) GetStats(c *gin.Context) {
	c.IndentedJSON(http.StatusOK, d.store.GetStats())
}

// GetTargetKeys godoc
// @Summary GetTargetKeys returns the keys currently matched by a target id
// @Schemes
// @Description GetTargetKeys responds with the set of document keys the given target is watching.
// @Tags Diagnostics
// @Produce json
// @Param			targetId	path		int		true	"Target id"
// @Failure 400 {object} map[string]any
// @Success 200 {object} []string
// @Router /targets/{targetId}/keys [get]
// @Security Bearer
func (d *diagnosticsAPI) GetTargetKeys(c *gin.Context) {
	targetID, err := strconv.Atoi(c.Param("targetId"))
	if err != nil {
		c.IndentedJSON(http.StatusBadRequest, gin.H{"message": "targetId must be an integer"})
		return
	}
	keys, err := d.store.GetRemoteDocumentKeys(targetID)
	if err != nil {
		c.IndentedJSON(http.StatusInternalServerError, gin.H{"message": err.Error()})
		return
	}
	out := make([]string, 0, len(keys))
	for k := range keys {
		out = append(out, k.Path())
	}
	c.IndentedJSON(http.StatusOK, out)
}

// GetReferenceCount godoc
// @Summary GetReferenceCount returns how many pins a document key currently holds
// @Schemes
// @Description GetReferenceCount responds with the pin count backing a key's GC eligibility.
// @Tags Diagnostics
// @Produce json
// @Param			path	query		string		true	"Document path"
// @Failure 400 {object} map[string]any
// @Success 200 {object} map[string]int
// @Router /references [get]
// @Security Bearer
func (d *diagnosticsAPI) GetReferenceCount(c *gin.Context) {
	path := c.Query("path")
	key, err := localstore.ParseDocumentKey(path)
	if err != nil {
		c.IndentedJSON(http.StatusBadRequest, gin.H{"message": err.Error()})
		return
	}
	c.IndentedJSON(http.StatusOK, gin.H{"path": path, "referenceCount": d.store.ReferenceCountFor(key)})
}

// GetDocument godoc
// @Summary GetDocument returns a document's current locally-visible value
// @Schemes
// @Description GetDocument responds with the MaybeDocument (Document, NoDocument, or UnknownDocument) for path.
// @Tags Diagnostics
// @Produce json
// @Param			path	query		string		true	"Document path"
// @Failure 400 {object} map[string]any
// @Failure 500 {object} map[string]any
// @Success 200 {object} localstore.MaybeDocument
// @Router /documents [get]
// @Security Bearer
func (d *diagnosticsAPI) GetDocument(c *gin.Context) {
	path := c.Query("path")
	key, err := localstore.ParseDocumentKey(path)
	if err != nil {
		c.IndentedJSON(http.StatusBadRequest, gin.H{"message": err.Error()})
		return
	}
	doc, err := d.store.ReadDocument(key)
	if err != nil {
		c.IndentedJSON(http.StatusInternalServerError, gin.H{"message": err.Error()})
		return
	}
	c.IndentedJSON(http.StatusOK, doc)
}
