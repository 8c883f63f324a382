// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Rasul Khiriev

package conflict

import (
	"strconv"
	"strings"

	"github.com/MKhiriev/go-note-keeper/models"
)

// Outcome is the fate of a conflict.
type Outcome int

const (
	// KeepRemote stores the remote version; a pending local entry is dropped.
	KeepRemote Outcome = iota
	// KeepLocal leaves the local version and its pending push in place.
	KeepLocal
	// KeepBoth stores the remote version under the original id and the
	// local version under a clone id.
	KeepBoth
)

func (o Outcome) String() string {
	switch o {
	case KeepRemote:
		return "remote"
	case KeepLocal:
		return "local"
	case KeepBoth:
		return "both"
	default:
		return "unknown"
	}
}

// Rule names which branch of the resolver decided.
type Rule string

const (
	RuleSameVersion   Rule = "same-version"
	RuleRemoteNewer   Rule = "remote-newer"
	RuleStaleRemote   Rule = "stale-remote"
	RuleEditWins      Rule = "edit-wins"
	RuleTombstoneKept Rule = "tombstone-kept"
	RuleLastWriteWins Rule = "last-write-wins"
	RuleLocalNewer    Rule = "local-newer"
	RuleDuplicate     Rule = "duplicate"
)

type Resolution struct {
	Outcome Outcome
	Rule    Rule
}

type resolver struct{}

func NewResolver() Resolver {
	return resolver{}
}

func (resolver) Resolve(c models.Conflict) Resolution {
	local, remote := c.Local, c.Remote

	if sameVersion(local, remote) {
		return Resolution{Outcome: KeepRemote, Rule: RuleSameVersion}
	}

	if !c.LocalPending {
		if remote.DateEdited > local.DateEdited {
			return Resolution{Outcome: KeepRemote, Rule: RuleRemoteNewer}
		}
		return Resolution{Outcome: KeepLocal, Rule: RuleStaleRemote}
	}

	if local.Deleted != remote.Deleted {
		return resolveDeletion(local, remote)
	}

	if !local.Deleted && (local.ContentBearing() || remote.ContentBearing()) {
		if local.ContentHash() == remote.ContentHash() {
			return Resolution{Outcome: KeepRemote, Rule: RuleSameVersion}
		}
		if local.DateEdited > remote.DateEdited {
			return Resolution{Outcome: KeepLocal, Rule: RuleLocalNewer}
		}
		return Resolution{Outcome: KeepBoth, Rule: RuleDuplicate}
	}

	if remoteWinsLWW(local, remote) {
		return Resolution{Outcome: KeepRemote, Rule: RuleLastWriteWins}
	}
	return Resolution{Outcome: KeepLocal, Rule: RuleLastWriteWins}
}

// resolveDeletion handles a tombstone on exactly one side. A pending local
// edit beats a remote tombstone. A local tombstone only yields to a
// strictly newer remote edit.
func resolveDeletion(local, remote models.Item) Resolution {
	if !local.Deleted {
		return Resolution{Outcome: KeepLocal, Rule: RuleEditWins}
	}
	if remote.DateEdited > local.DateEdited {
		return Resolution{Outcome: KeepRemote, Rule: RuleEditWins}
	}
	return Resolution{Outcome: KeepLocal, Rule: RuleTombstoneKept}
}

// remoteWinsLWW orders by dateEdited, then device id, then payload hash so
// every replica picks the same winner.
func remoteWinsLWW(local, remote models.Item) bool {
	if remote.DateEdited != local.DateEdited {
		return remote.DateEdited > local.DateEdited
	}
	if cmp := strings.Compare(remote.DeviceID, local.DeviceID); cmp != 0 {
		return cmp > 0
	}
	return remote.ContentHash() > local.ContentHash()
}

func sameVersion(a, b models.Item) bool {
	return a.DateEdited == b.DateEdited &&
		a.Deleted == b.Deleted &&
		a.ContentHash() == b.ContentHash()
}

// CloneID is the id the local copy of a duplicated item is stored under.
// taken reports ids already in use.
func CloneID(id string, taken func(string) bool) string {
	candidate := id + "-copy"
	for n := 2; taken(candidate); n++ {
		candidate = id + "-copy-" + strconv.Itoa(n)
	}
	return candidate
}

// Clone returns local as a new pending item under id, linked to the
// original through ConflictOf.
func Clone(local models.Item, id string, dateEdited int64) models.Item {
	clone := local
	clone.ID = id
	clone.ConflictOf = local.ID
	clone.DateEdited = dateEdited
	clone.Remote = false
	clone.Data = append([]byte(nil), local.Data...)
	return clone
}
