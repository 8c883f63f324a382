package conflict

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/MKhiriev/go-note-keeper/models"
)

func item(t models.ItemType, edited int64, data string) models.Item {
	return models.Item{
		ID:          "n1",
		Type:        t,
		DateCreated: 1,
		DateEdited:  edited,
		DeviceID:    "a",
		Data:        json.RawMessage(data),
	}
}

func tombstone(i models.Item) models.Item {
	i.Deleted = true
	return i
}

func withDevice(i models.Item, device string) models.Item {
	i.DeviceID = device
	return i
}

func TestResolver_Resolve(t *testing.T) {
	tests := []struct {
		name     string
		conflict models.Conflict
		want     Resolution
	}{
		{
			name: "identical version is acknowledged",
			conflict: models.Conflict{
				Local:        item(models.TypeNote, 100, `{"title":"a"}`),
				Remote:       item(models.TypeNote, 100, `{"title":"a"}`),
				LocalPending: true,
			},
			want: Resolution{Outcome: KeepRemote, Rule: RuleSameVersion},
		},
		{
			name: "remote newer without pending local edit",
			conflict: models.Conflict{
				Local:  item(models.TypeNote, 100, `{"title":"a"}`),
				Remote: item(models.TypeNote, 120, `{"title":"b"}`),
			},
			want: Resolution{Outcome: KeepRemote, Rule: RuleRemoteNewer},
		},
		{
			name: "stale remote without pending local edit",
			conflict: models.Conflict{
				Local:  item(models.TypeNote, 120, `{"title":"a"}`),
				Remote: item(models.TypeNote, 100, `{"title":"b"}`),
			},
			want: Resolution{Outcome: KeepLocal, Rule: RuleStaleRemote},
		},
		{
			name: "content: local newer wins without conflict",
			conflict: models.Conflict{
				Local:        item(models.TypeNote, 150, `{"title":"local"}`),
				Remote:       item(models.TypeNote, 140, `{"title":"remote"}`),
				LocalPending: true,
			},
			want: Resolution{Outcome: KeepLocal, Rule: RuleLocalNewer},
		},
		{
			name: "content: remote newer with different hash duplicates",
			conflict: models.Conflict{
				Local:        item(models.TypeNote, 150, `{"title":"local"}`),
				Remote:       item(models.TypeNote, 160, `{"title":"remote"}`),
				LocalPending: true,
			},
			want: Resolution{Outcome: KeepBoth, Rule: RuleDuplicate},
		},
		{
			name: "content: equal timestamps with different hash duplicates",
			conflict: models.Conflict{
				Local:        item(models.TypeContent, 150, `{"body":"x"}`),
				Remote:       item(models.TypeContent, 150, `{"body":"y"}`),
				LocalPending: true,
			},
			want: Resolution{Outcome: KeepBoth, Rule: RuleDuplicate},
		},
		{
			name: "content: same payload at different times",
			conflict: models.Conflict{
				Local:        item(models.TypeContent, 150, `{"body":"x"}`),
				Remote:       item(models.TypeContent, 160, `{"body":"x"}`),
				LocalPending: true,
			},
			want: Resolution{Outcome: KeepRemote, Rule: RuleSameVersion},
		},
		{
			name: "locked metadata item is treated as content",
			conflict: models.Conflict{
				Local:        func() models.Item { i := item(models.TypeTag, 150, `"AAA"`); i.Locked = true; return i }(),
				Remote:       func() models.Item { i := item(models.TypeTag, 160, `"BBB"`); i.Locked = true; return i }(),
				LocalPending: true,
			},
			want: Resolution{Outcome: KeepBoth, Rule: RuleDuplicate},
		},
		{
			name: "metadata: remote newer wins",
			conflict: models.Conflict{
				Local:        item(models.TypeNotebook, 150, `{"title":"a"}`),
				Remote:       item(models.TypeNotebook, 160, `{"title":"b"}`),
				LocalPending: true,
			},
			want: Resolution{Outcome: KeepRemote, Rule: RuleLastWriteWins},
		},
		{
			name: "metadata: local newer wins",
			conflict: models.Conflict{
				Local:        item(models.TypeNotebook, 170, `{"title":"a"}`),
				Remote:       item(models.TypeNotebook, 160, `{"title":"b"}`),
				LocalPending: true,
			},
			want: Resolution{Outcome: KeepLocal, Rule: RuleLastWriteWins},
		},
		{
			name: "metadata: tie broken by device id",
			conflict: models.Conflict{
				Local:        withDevice(item(models.TypeTag, 150, `{"title":"a"}`), "device-a"),
				Remote:       withDevice(item(models.TypeTag, 150, `{"title":"b"}`), "device-b"),
				LocalPending: true,
			},
			want: Resolution{Outcome: KeepRemote, Rule: RuleLastWriteWins},
		},
		{
			name: "local edit beats remote tombstone",
			conflict: models.Conflict{
				Local:        item(models.TypeNote, 150, `{"title":"a"}`),
				Remote:       tombstone(item(models.TypeNote, 160, `{"title":"a"}`)),
				LocalPending: true,
			},
			want: Resolution{Outcome: KeepLocal, Rule: RuleEditWins},
		},
		{
			name: "newer remote edit undeletes local tombstone",
			conflict: models.Conflict{
				Local:        tombstone(item(models.TypeNote, 150, `{"title":"a"}`)),
				Remote:       item(models.TypeNote, 160, `{"title":"b"}`),
				LocalPending: true,
			},
			want: Resolution{Outcome: KeepRemote, Rule: RuleEditWins},
		},
		{
			name: "older remote edit keeps local tombstone",
			conflict: models.Conflict{
				Local:        tombstone(item(models.TypeNote, 150, `{"title":"a"}`)),
				Remote:       item(models.TypeNote, 140, `{"title":"b"}`),
				LocalPending: true,
			},
			want: Resolution{Outcome: KeepLocal, Rule: RuleTombstoneKept},
		},
		{
			name: "two tombstones never duplicate",
			conflict: models.Conflict{
				Local:        tombstone(item(models.TypeNote, 150, `{"title":"a"}`)),
				Remote:       tombstone(item(models.TypeNote, 160, `{"title":"b"}`)),
				LocalPending: true,
			},
			want: Resolution{Outcome: KeepRemote, Rule: RuleLastWriteWins},
		},
	}

	r := NewResolver()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, r.Resolve(tt.conflict))
		})
	}
}

func TestResolver_Deterministic(t *testing.T) {
	a := withDevice(item(models.TypeTag, 150, `{"title":"a"}`), "device-a")
	b := withDevice(item(models.TypeTag, 150, `{"title":"b"}`), "device-b")
	r := NewResolver()

	onA := r.Resolve(models.Conflict{Local: a, Remote: b, LocalPending: true})
	onB := r.Resolve(models.Conflict{Local: b, Remote: a, LocalPending: true})

	assert.Equal(t, KeepRemote, onA.Outcome)
	assert.Equal(t, KeepLocal, onB.Outcome, "both replicas converge on device-b")
}

func TestCloneID(t *testing.T) {
	taken := map[string]bool{"n1-copy": true, "n1-copy-2": true}

	assert.Equal(t, "n2-copy", CloneID("n2", func(id string) bool { return taken[id] }))
	assert.Equal(t, "n1-copy-3", CloneID("n1", func(id string) bool { return taken[id] }))
}

func TestClone(t *testing.T) {
	local := item(models.TypeNote, 150, `{"title":"local"}`)
	local.Remote = true

	clone := Clone(local, "n1-copy", 170)

	assert.Equal(t, "n1-copy", clone.ID)
	assert.Equal(t, "n1", clone.ConflictOf)
	assert.Equal(t, int64(170), clone.DateEdited)
	assert.False(t, clone.Remote)
	assert.Equal(t, local.ContentHash(), clone.ContentHash())

	clone.Data[0] = 'X'
	assert.Equal(t, byte('{'), local.Data[0], "clone owns its payload")
}

func TestOutcome_String(t *testing.T) {
	assert.Equal(t, "remote", KeepRemote.String())
	assert.Equal(t, "local", KeepLocal.String())
	assert.Equal(t, "both", KeepBoth.String())
	assert.Equal(t, "unknown", Outcome(9).String())
}
