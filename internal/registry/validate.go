package registry

import (
	"fmt"
	"sort"

	"github.com/zjrosen/catalog/internal/identity"
	"github.com/zjrosen/catalog/internal/log"
	"github.com/zjrosen/catalog/internal/storage"
)

// IssueKind classifies a validation finding.
type IssueKind string

const (
	IssueOwnershipViolation  IssueKind = "ownership_violation"
	IssueDuplicateIdentifier IssueKind = "duplicate_identifier"
	IssueInvalidIdentifier   IssueKind = "invalid_identifier"
	IssueOrphanRecord        IssueKind = "orphan_record"
)

// Issue is one invariant violation found by Validate.
type Issue struct {
	Kind       IssueKind
	Collection storage.Location
	Record     storage.Location
	Detail     string
}

func (i Issue) String() string {
	switch {
	case i.Collection != "" && i.Record != "":
		return fmt.Sprintf("%s: %s in %s: %s", i.Kind, i.Record, i.Collection, i.Detail)
	case i.Record != "":
		return fmt.Sprintf("%s: %s: %s", i.Kind, i.Record, i.Detail)
	default:
		return fmt.Sprintf("%s: %s: %s", i.Kind, i.Collection, i.Detail)
	}
}

// Validate walks every known Collection and the stored Records and reports
// invariant violations. It never repairs anything and never reloads.
func (r *Registry) Validate() ([]Issue, error) {
	var issues []Issue
	seen := make(map[identity.ID]storage.Location)

	claim := func(id identity.ID, loc storage.Location, coll storage.Location) {
		if owner, dup := seen[id]; dup && owner != loc {
			issues = append(issues, Issue{
				Kind:       IssueDuplicateIdentifier,
				Collection: coll,
				Record:     loc,
				Detail:     fmt.Sprintf("identifier %s also used by %s", id, owner),
			})
			return
		}
		seen[id] = loc
	}

	collections := r.sorted()
	for _, c := range collections {
		if !c.ID().IsValid() {
			issues = append(issues, Issue{Kind: IssueInvalidIdentifier, Collection: c.Location(), Detail: "collection has no identifier"})
		} else {
			claim(c.ID(), c.Location(), "")
		}
		for _, rec := range c.Records() {
			if rec.IsDestroyed() {
				issues = append(issues, Issue{
					Kind: IssueOwnershipViolation, Collection: c.Location(), Record: rec.Location(),
					Detail: "sequence holds a deleted record",
				})
				continue
			}
			if !rec.ID().IsValid() {
				issues = append(issues, Issue{
					Kind: IssueInvalidIdentifier, Collection: c.Location(), Record: rec.Location(),
					Detail: "record has no identifier",
				})
			} else {
				claim(rec.ID(), rec.Location(), c.Location())
			}
			if rec.Collection() != c.ID() {
				issues = append(issues, Issue{
					Kind: IssueOwnershipViolation, Collection: c.Location(), Record: rec.Location(),
					Detail: fmt.Sprintf("record names %s as owner", rec.Collection()),
				})
			}
		}
	}

	orphans, err := r.orphans(seen)
	if err != nil {
		return issues, err
	}
	issues = append(issues, orphans...)

	sort.SliceStable(issues, func(i, j int) bool {
		if issues[i].Collection != issues[j].Collection {
			return issues[i].Collection < issues[j].Collection
		}
		return issues[i].Record < issues[j].Record
	})
	if len(issues) > 0 {
		log.Warn(log.CatRegistry, "Validation found issues", "count", len(issues))
	}
	return issues, nil
}

// orphans reports stored Records that are in no known Collection's
// sequence (unowned, owned by an unknown Collection, or not adopted) and
// sequence members whose asset is gone from storage.
func (r *Registry) orphans(seen map[identity.ID]storage.Location) ([]Issue, error) {
	var issues []Issue
	stored := make(map[storage.Location]bool)
	for _, kind := range r.db.Kinds().List() {
		records, err := r.db.PeekRecords(kind.Record)
		if err != nil {
			return issues, fmt.Errorf("enumerate %s: %w", kind.Record, err)
		}
		for _, rec := range records {
			stored[rec.Location()] = true
			if loc, ok := seen[rec.ID()]; ok && loc == rec.Location() {
				continue
			}
			owner, known := r.Collection(rec.Collection())
			switch {
			case !rec.Collection().IsValid():
				issues = append(issues, Issue{Kind: IssueOrphanRecord, Record: rec.Location(), Detail: "record has no owner"})
			case !known:
				issues = append(issues, Issue{
					Kind: IssueOrphanRecord, Record: rec.Location(),
					Detail: fmt.Sprintf("owner %s is not a known collection", rec.Collection()),
				})
			case !owner.Contains(rec):
				detail := "record is not in its collection's sequence"
				if !storage.NestedUnder(rec.Location(), owner.Location()) {
					detail = "record is not nested under its collection"
				}
				issues = append(issues, Issue{
					Kind: IssueOwnershipViolation, Collection: owner.Location(), Record: rec.Location(),
					Detail: detail,
				})
			}
		}
	}

	for _, c := range r.sorted() {
		for _, rec := range c.Records() {
			if rec.IsDestroyed() || stored[rec.Location()] {
				continue
			}
			issues = append(issues, Issue{
				Kind: IssueOwnershipViolation, Collection: c.Location(), Record: rec.Location(),
				Detail: "sequence holds a record missing from storage",
			})
		}
	}
	return issues, nil
}
