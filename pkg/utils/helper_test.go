package utils

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/aldoetobex/legal-bid-backend/pkg/models"
)

func TestNewPage(t *testing.T) {
	assert.Equal(t, Page{Number: 1, Size: 10}, NewPage(0, 0))
	assert.Equal(t, Page{Number: 3, Size: 10}, NewPage(3, 500))
	assert.Equal(t, Page{Number: 2, Size: 25}, NewPage(2, 25))
	assert.Equal(t, 25, NewPage(2, 25).Offset())
}

func TestLogCaseHistory(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	log := zap.New(core)

	caseID, actorID := uuid.New(), uuid.New()
	LogCaseHistory(log, caseID, actorID, "closed", models.CaseAssigned, models.CaseClosed, "")

	entries := logs.All()
	if assert.Len(t, entries, 1) {
		ctx := entries[0].ContextMap()
		assert.Equal(t, caseID.String(), ctx["case_id"])
		assert.Equal(t, "assigned", ctx["from"])
		assert.Equal(t, "closed", ctx["to"])
		assert.NotContains(t, ctx, "reason")
	}
}
