package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"rostercore/pkg/domain"
)

func addPerson(t *testing.T, store *Store, first, last string) domain.Person {
	t.Helper()
	var created domain.Person
	_, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		p, err := tx.AddPerson(domain.Person{FirstName: first, LastName: last})
		created = p
		return err
	})
	if err != nil {
		t.Fatalf("add person: %v", err)
	}
	return created
}

func TestAddPersonAppendsInInsertionOrder(t *testing.T) {
	store := NewStore(nil)
	a := addPerson(t, store, "Ada", "Lovelace")
	b := addPerson(t, store, "Grace", "Hopper")
	c := addPerson(t, store, "Alan", "Turing")

	people := store.ListPeople()
	if len(people) != 3 {
		t.Fatalf("expected 3 people, got %d", len(people))
	}
	for i, want := range []string{a.ID, b.ID, c.ID} {
		if people[i].ID != want {
			t.Fatalf("position %d: expected %s, got %s", i, want, people[i].ID)
		}
	}
	if store.Version() != 3 {
		t.Fatalf("expected version 3, got %d", store.Version())
	}
}

func TestAddPersonAssignsIDAndTimestamps(t *testing.T) {
	store := NewStore(nil)
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store.SetClock(func() time.Time { return fixed })

	created := addPerson(t, store, "Ada", "Lovelace")
	if created.ID == "" {
		t.Fatal("expected generated ID")
	}
	if !created.CreatedAt.Equal(fixed) || !created.UpdatedAt.Equal(fixed) {
		t.Fatalf("expected timestamps %v, got created=%v updated=%v", fixed, created.CreatedAt, created.UpdatedAt)
	}
}

func TestAddPersonRejectsDuplicateID(t *testing.T) {
	store := NewStore(nil)
	created := addPerson(t, store, "Ada", "Lovelace")

	_, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		_, err := tx.AddPerson(domain.Person{Base: domain.Base{ID: created.ID}, FirstName: "Dup", LastName: "Licate"})
		return err
	})
	if err == nil {
		t.Fatal("expected duplicate ID error")
	}
	if got := len(store.ListPeople()); got != 1 {
		t.Fatalf("expected roster unchanged, got %d people", got)
	}
}

func TestReplacePersonKeepsPositionAndCreatedAt(t *testing.T) {
	store := NewStore(nil)
	created := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	store.SetClock(func() time.Time { return created })
	first := addPerson(t, store, "Ada", "Lovelace")
	second := addPerson(t, store, "Grace", "Hopper")

	updatedAt := created.Add(time.Hour)
	store.SetClock(func() time.Time { return updatedAt })
	_, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		p := domain.Person{FirstName: "Augusta", LastName: "King"}
		p.ID = first.ID
		replaced, found := tx.ReplacePerson(p)
		if !found {
			t.Fatal("expected existing person to be found")
		}
		if !replaced.CreatedAt.Equal(created) {
			t.Fatalf("expected CreatedAt preserved, got %v", replaced.CreatedAt)
		}
		if !replaced.UpdatedAt.Equal(updatedAt) {
			t.Fatalf("expected UpdatedAt bumped, got %v", replaced.UpdatedAt)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("replace: %v", err)
	}

	people := store.ListPeople()
	if people[0].ID != first.ID || people[0].FirstName != "Augusta" {
		t.Fatalf("expected replaced record to keep position 0, got %+v", people[0])
	}
	if people[1].ID != second.ID {
		t.Fatalf("expected second record untouched, got %+v", people[1])
	}
}

func TestReplacePersonMissingIDIsSilentNoOp(t *testing.T) {
	store := NewStore(nil)
	addPerson(t, store, "Ada", "Lovelace")
	before := store.Version()

	_, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		p := domain.Person{FirstName: "Ghost", LastName: "Entry"}
		p.ID = "missing"
		if _, found := tx.ReplacePerson(p); found {
			t.Fatal("expected found=false for missing ID")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("transaction: %v", err)
	}
	if store.Version() != before {
		t.Fatalf("expected version unchanged on no-op, got %d", store.Version())
	}
	if got := len(store.ListPeople()); got != 1 {
		t.Fatalf("expected roster unchanged, got %d people", got)
	}
}

func TestRemovePersonIsIdempotent(t *testing.T) {
	store := NewStore(nil)
	a := addPerson(t, store, "Ada", "Lovelace")
	b := addPerson(t, store, "Grace", "Hopper")
	c := addPerson(t, store, "Alan", "Turing")

	_, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		if !tx.RemovePerson(b.ID) {
			t.Fatal("expected first remove to report true")
		}
		if tx.RemovePerson(b.ID) {
			t.Fatal("expected second remove to report false")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("remove: %v", err)
	}

	people := store.ListPeople()
	if len(people) != 2 || people[0].ID != a.ID || people[1].ID != c.ID {
		t.Fatalf("expected [%s %s], got %+v", a.ID, c.ID, people)
	}

	before := store.Version()
	_, err = store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		if tx.RemovePerson("never-existed") {
			t.Fatal("expected remove of absent ID to report false")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("remove absent: %v", err)
	}
	if store.Version() != before {
		t.Fatalf("expected version unchanged, got %d", store.Version())
	}
}

type rejectAllRule struct{}

func (rejectAllRule) Name() string { return "reject_everything" }

func (rejectAllRule) Evaluate(_ context.Context, _ domain.RuleView, changes []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	for range changes {
		res.Violations = append(res.Violations, domain.Violation{
			Rule: "reject_everything", Severity: domain.SeverityBlock, Message: "nope",
		})
	}
	return res, nil
}

func TestBlockingRuleAbortsCommit(t *testing.T) {
	engine := domain.NewRulesEngine()
	engine.Register(rejectAllRule{})
	store := NewStore(engine)

	_, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		_, err := tx.AddPerson(domain.Person{FirstName: "Ada", LastName: "Lovelace"})
		return err
	})
	var ruleErr domain.RuleViolationError
	if !errors.As(err, &ruleErr) {
		t.Fatalf("expected RuleViolationError, got %v", err)
	}
	if len(store.ListPeople()) != 0 {
		t.Fatal("expected aborted commit to leave the roster untouched")
	}
	if store.Version() != 0 {
		t.Fatalf("expected version 0 after aborted commit, got %d", store.Version())
	}
}

func TestReadOnlyTransactionDoesNotBumpVersion(t *testing.T) {
	store := NewStore(nil)
	addPerson(t, store, "Ada", "Lovelace")

	before := store.Version()
	_, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		if _, ok := tx.FindPerson("missing"); ok {
			t.Fatal("unexpected find")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("transaction: %v", err)
	}
	if store.Version() != before {
		t.Fatalf("expected version %d, got %d", before, store.Version())
	}
}

func TestWatchDeliversCommitNotices(t *testing.T) {
	store := NewStore(nil)
	ch, cancel := store.Watch(4)
	defer cancel()

	created := addPerson(t, store, "Ada", "Lovelace")

	select {
	case notice := <-ch:
		if notice.Version != 1 {
			t.Fatalf("expected version 1, got %d", notice.Version)
		}
		if len(notice.Changes) != 1 || notice.Changes[0].Action != domain.ActionCreate {
			t.Fatalf("unexpected changes %+v", notice.Changes)
		}
		after, ok := notice.Changes[0].After.(domain.Person)
		if !ok || after.ID != created.ID {
			t.Fatalf("unexpected change payload %+v", notice.Changes[0].After)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for commit notice")
	}
}

func TestWatchCancelClosesChannel(t *testing.T) {
	store := NewStore(nil)
	ch, cancel := store.Watch(1)
	cancel()
	if _, open := <-ch; open {
		t.Fatal("expected channel closed after cancel")
	}
	// A commit after cancel must not panic or notify.
	addPerson(t, store, "Ada", "Lovelace")
}

func TestSlowWatcherDoesNotBlockCommits(t *testing.T) {
	store := NewStore(nil)
	ch, cancel := store.Watch(1)
	defer cancel()

	addPerson(t, store, "Ada", "Lovelace")
	addPerson(t, store, "Grace", "Hopper") // dropped: buffer full, nobody reading

	notice := <-ch
	if notice.Version != 1 {
		t.Fatalf("expected buffered notice for version 1, got %d", notice.Version)
	}
	if store.Version() != 2 {
		t.Fatalf("expected both commits applied, got version %d", store.Version())
	}
}

func TestViewSeesConsistentSnapshot(t *testing.T) {
	store := NewStore(nil)
	created := addPerson(t, store, "Ada", "Lovelace")

	err := store.View(context.Background(), func(v domain.TransactionView) error {
		if v.Version() != 1 {
			t.Fatalf("expected snapshot version 1, got %d", v.Version())
		}
		people := v.ListPeople()
		if len(people) != 1 || people[0].ID != created.ID {
			t.Fatalf("unexpected snapshot %+v", people)
		}
		if _, ok := v.FindPerson(created.ID); !ok {
			t.Fatal("expected person visible in snapshot")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("view: %v", err)
	}
}

func TestExportImportRoundTrip(t *testing.T) {
	store := NewStore(nil)
	a := addPerson(t, store, "Ada", "Lovelace")
	b := addPerson(t, store, "Grace", "Hopper")

	snapshot := store.ExportState()
	restored := NewStore(nil)
	restored.ImportState(snapshot)

	if restored.Version() != store.Version() {
		t.Fatalf("expected version %d, got %d", store.Version(), restored.Version())
	}
	people := restored.ListPeople()
	if len(people) != 2 || people[0].ID != a.ID || people[1].ID != b.ID {
		t.Fatalf("expected order preserved after import, got %+v", people)
	}
	if _, ok := restored.GetPerson(b.ID); !ok {
		t.Fatal("expected index rebuilt after import")
	}
}
