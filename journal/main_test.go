package journal

import (
	"fmt"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
)

func sampleEntries(n int) []Entry {
	base := time.Date(2023, 7, 13, 18, 37, 0, 0, time.UTC)
	es := make([]Entry, n)
	for i := range es {
		es[i] = Entry{
			Seq:     uint64(i + 1),
			Time:    base.Add(time.Duration(i) * time.Second),
			Kind:    KindGrant,
			Train:   3,
			Block:   4,
			Detail:  fmt.Sprintf("entry %d", i),
			Request: uuid.MustParse("a7453d82-d52f-43ec-84d2-54dcea72f8c1"),
		}
	}
	return es
}

func TestStores(t *testing.T) {
	opens := map[string]func() (Store, error){
		"memory": func() (Store, error) { return new(Memory), nil },
		"buntdb": func() (Store, error) { return OpenBunt(":memory:") },
		"sqlite": func() (Store, error) { return OpenSQLite(":memory:") },
	}
	for name, open := range opens {
		t.Run(name, func(t *testing.T) {
			s, err := open()
			if err != nil {
				t.Fatalf("open: %s", err)
			}
			defer s.Close()
			es := sampleEntries(5)
			err = s.Append(es[:2])
			if err != nil {
				t.Fatalf("append: %s", err)
			}
			err = s.Append(es[2:])
			if err != nil {
				t.Fatalf("append: %s", err)
			}
			got, err := s.Since(0, 0)
			if err != nil {
				t.Fatalf("since: %s", err)
			}
			if !cmp.Equal(es, got) {
				t.Fatalf("diff: %s", cmp.Diff(es, got))
			}
			got, err = s.Since(2, 2)
			if err != nil {
				t.Fatalf("since: %s", err)
			}
			if !cmp.Equal(es[2:4], got) {
				t.Fatalf("diff: %s", cmp.Diff(es[2:4], got))
			}
		})
	}
}

func TestJournalNumbering(t *testing.T) {
	m := new(Memory)
	m.Append(sampleEntries(3))
	j, err := New(m)
	if err != nil {
		t.Fatalf("New: %s", err)
	}
	j.Record(Entry{Kind: KindRelease, Train: 3, Block: 4})
	j.Record(Entry{Kind: KindTransition, Train: 3, Block: -1, Detail: "Idle → Planning"})
	err = j.Close()
	if err != nil {
		t.Fatalf("Close: %s", err)
	}
	j.Record(Entry{Kind: KindFault})
	got, err := m.Since(3, 0)
	if err != nil {
		t.Fatalf("since: %s", err)
	}
	seqs := []uint64{}
	for _, e := range got {
		if e.Time.IsZero() {
			t.Errorf("entry %d: zero time", e.Seq)
		}
		seqs = append(seqs, e.Seq)
	}
	if !cmp.Equal([]uint64{4, 5}, seqs) {
		t.Fatalf("diff: %s", cmp.Diff([]uint64{4, 5}, seqs))
	}
}
