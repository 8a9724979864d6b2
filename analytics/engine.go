// Package analytics computes dashboard aggregates and scoped facts from the
// acceptance, issue and action tables. All queries return typed row structs;
// nothing here mutates records except the region backfill.
package analytics

import (
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"sitecheck/store"
)

type Engine struct {
	db  *gorm.DB
	st  *store.Store
	log *logrus.Logger
}

func New(st *store.Store, log *logrus.Logger) *Engine {
	return &Engine{db: st.DB(), st: st, log: log}
}

// itemKeyExpr dedupes acceptance rows into checklist items. The worst result
// across an item's rows decides its classification.
const itemKeyExpr = "COALESCE(item_code, item, indicator_code, indicator)"

// processExpr prefers human-readable names over codes when labelling work
// processes for progress output.
const processExpr = "COALESCE(item, indicator, subdivision, division, item_code, indicator_code)"
