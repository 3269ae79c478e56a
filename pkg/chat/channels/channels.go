// Package channels is a small chat layer that keeps two channel rankings
// current: by member count and by message count. Every mutation runs
// under the channel's lock, reads the counts it is about to change, and
// hands both the old and the new count to the ranking.
package channels

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"

	"chatstore/pkg/models"
	"chatstore/pkg/state/logger"
	"chatstore/pkg/store/avltree"
	"chatstore/pkg/store/docs"
	"chatstore/pkg/store/kv"
	"chatstore/pkg/store/locks"
	"chatstore/pkg/store/ranking"
)

var (
	ErrChannelExists   = errors.New("channels: channel already exists")
	ErrChannelNotFound = errors.New("channels: channel not found")
	ErrNotMember       = errors.New("channels: not a member")
	ErrUnknownRanking  = errors.New("channels: unknown ranking")
)

// ranking tree names
const (
	RankingMembers  = "channels_by_members"
	RankingMessages = "channels_by_messages"
)

// storage layout
const (
	collChannels = "channels"
	collMembers  = "members"
	collMessages = "messages"

	fieldOwner        = "owner"
	fieldCreatedSeq   = "created_seq"
	fieldMemberCount  = "member_count"
	fieldMessageCount = "message_count"
	fieldMembers      = "members"
	fieldJoined       = "joined"

	fieldAuthor = "author"
	fieldText   = "text"
	fieldSeq    = "seq"

	collMeta     = "meta"
	docCounters  = "counters"
	fieldChanSeq = "channel_seq"
)

// By selects a ranking for Top.
type By string

const (
	ByMembers  By = "members"
	ByMessages By = "messages"
)

// ParseBy accepts the short names and the tree names.
func ParseBy(s string) (By, error) {
	switch s {
	case string(ByMembers), RankingMembers:
		return ByMembers, nil
	case string(ByMessages), RankingMessages:
		return ByMessages, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownRanking, s)
}

type Service struct {
	db         *docs.DB
	byMembers  *ranking.Ranking
	byMessages *ranking.Ranking
	locks      *locks.Keyed
	seqMu      sync.Mutex
}

func New(db *docs.DB, byMembers, byMessages *ranking.Ranking) *Service {
	return &Service{
		db:         db,
		byMembers:  byMembers,
		byMessages: byMessages,
		locks:      locks.NewKeyed(),
	}
}

// Open builds the service with both rankings stored in store.
func Open(store kv.Store, db *docs.DB, opts ...avltree.Option) (*Service, error) {
	byMembers, err := ranking.Open(store, RankingMembers, opts...)
	if err != nil {
		return nil, err
	}
	byMessages, err := ranking.Open(store, RankingMessages, opts...)
	if err != nil {
		return nil, err
	}
	return New(db, byMembers, byMessages), nil
}

// Ranking returns the ranking behind by.
func (s *Service) Ranking(by By) (*ranking.Ranking, error) {
	switch by {
	case ByMembers:
		return s.byMembers, nil
	case ByMessages:
		return s.byMessages, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownRanking, by)
}

// Rankings lists both rankings, members first.
func (s *Service) Rankings() []*ranking.Ranking {
	return []*ranking.Ranking{s.byMembers, s.byMessages}
}

// Top returns the names of the k highest ranked channels.
func (s *Service) Top(ctx context.Context, by By, k int) ([]string, error) {
	r, err := s.Ranking(by)
	if err != nil {
		return nil, err
	}
	return r.Top(ctx, k)
}

func (s *Service) channel(name string) *docs.Document {
	return s.db.Collection(collChannels).Document(name)
}

func (s *Service) member(name, user string) *docs.Document {
	return s.channel(name).Collection(collMembers).Document(user)
}

// message lives under the channel's creation ordinal, so a channel
// recreated under the same name does not see the messages of the one
// before it.
func (s *Service) message(ch *models.Channel, id string) *docs.Document {
	return s.channel(ch.Name).
		Collection(collMessages).
		Document(strconv.FormatInt(ch.CreatedSeq, 10)).
		Collection(collMessages).
		Document(id)
}

// rerank moves name back from rank from to rank to after a later write
// failed. A failure here is logged; the caller reports the original one.
func (s *Service) rerank(ctx context.Context, r *ranking.Ranking, name string, seq, from, to int64) {
	if err := r.Update(ctx, name, seq, from, to); err != nil {
		logger.Error("ranking_rollback_failed", "ranking", r.Name(), "channel", name, "error", err)
	}
}

// unrank takes back an entry added by a create that did not complete.
func (s *Service) unrank(ctx context.Context, r *ranking.Ranking, name string, seq, rank int64) {
	if err := r.Remove(ctx, seq, rank); err != nil {
		logger.Error("ranking_rollback_failed", "ranking", r.Name(), "channel", name, "error", err)
	}
}

// nextSeq hands out creation ordinals from a persisted counter. The first
// ordinal is 1.
func (s *Service) nextSeq(ctx context.Context) (int64, error) {
	s.seqMu.Lock()
	defer s.seqMu.Unlock()

	doc := s.db.Collection(collMeta).Document(docCounters)
	cur, _, err := doc.ReadInt(ctx, fieldChanSeq)
	if err != nil {
		return 0, fmt.Errorf("channels: read sequence: %w", err)
	}
	next := cur + 1
	if err := doc.Set(fieldChanSeq, next).Update(ctx); err != nil {
		return 0, fmt.Errorf("channels: advance sequence: %w", err)
	}
	return next, nil
}

func validName(kind, v string) error {
	if v == "" {
		return fmt.Errorf("%w: empty %s", docs.ErrInvalidName, kind)
	}
	return nil
}

func logFailure(event, name string, err error) {
	if err == nil {
		return
	}
	switch {
	case errors.Is(err, ErrChannelExists), errors.Is(err, ErrChannelNotFound),
		errors.Is(err, ErrNotMember), errors.Is(err, docs.ErrInvalidName):
		return
	}
	logger.Error(event, "channel", name, "error", err)
}
