package domain

import (
	"fmt"

	"github.com/google/uuid"
)

// SubjectKind identifies what a payment or ledger entry is about. It replaces
// runtime-reflected polymorphic associations with an explicit tagged union.
type SubjectKind string

const (
	SubjectPost         SubjectKind = "post"
	SubjectTip          SubjectKind = "tip"
	SubjectSubscription SubjectKind = "subscription"
	SubjectAdOrder      SubjectKind = "ad_order"
	SubjectCreator      SubjectKind = "creator"
	SubjectPlatform     SubjectKind = "platform"
)

func (k SubjectKind) Valid() bool {
	switch k {
	case SubjectPost, SubjectTip, SubjectSubscription, SubjectAdOrder, SubjectCreator, SubjectPlatform:
		return true
	}
	return false
}

// Subject is a (kind, id) reference to a payable or ledgerable entity.
type Subject struct {
	Kind SubjectKind
	ID   uuid.UUID
}

// PlatformSubject owns ledger postings that have no payee.
var PlatformSubject = Subject{Kind: SubjectPlatform, ID: uuid.Nil}

func (s Subject) String() string {
	return fmt.Sprintf("%s:%s", s.Kind, s.ID)
}
