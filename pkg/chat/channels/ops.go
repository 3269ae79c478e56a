package channels

import (
	"context"
	"errors"
	"fmt"

	"chatstore/pkg/models"
	"chatstore/pkg/state/logger"
	"chatstore/pkg/telemetry"

	"github.com/google/uuid"
)

var ErrMessageNotFound = errors.New("channels: message not found")

// Create makes a channel owned by owner, who becomes its first member.
func (s *Service) Create(ctx context.Context, name, owner string) (err error) {
	if err := validName("channel", name); err != nil {
		return err
	}
	if err := validName("user", owner); err != nil {
		return err
	}
	tr := telemetry.Track("channels.create")
	defer tr.Finish()
	defer func() { logFailure("channel_create_failed", name, err) }()

	unlock := s.locks.Lock(name)
	defer unlock()
	tr.Mark("lock")

	// a channel exists once its owner field is stored; fields are written
	// in name order and owner sorts last
	_, err = s.load(ctx, name)
	switch {
	case err == nil:
		return fmt.Errorf("%w: %s", ErrChannelExists, name)
	case !errors.Is(err, ErrChannelNotFound):
		return err
	}
	seq, err := s.nextSeq(ctx)
	if err != nil {
		return err
	}
	tr.Mark("sequence")

	// ranked first: until the channel document lands a retry starts over
	// with a fresh sequence, and a failure below takes the entries out again
	if err := s.byMembers.Add(ctx, name, seq, 1); err != nil {
		return err
	}
	if err := s.byMessages.Add(ctx, name, seq, 0); err != nil {
		s.unrank(ctx, s.byMembers, name, seq, 1)
		return err
	}
	tr.Mark("rank")

	doc := s.channel(name)
	doc.Set(fieldOwner, owner).
		Set(fieldCreatedSeq, seq).
		Set(fieldMemberCount, int64(1)).
		Set(fieldMessageCount, int64(0)).
		SetList(fieldMembers, []string{owner})
	// Update rather than Write: a half written document left by an earlier
	// failed create is overwritten
	if err := doc.Update(ctx); err != nil {
		s.unrank(ctx, s.byMembers, name, seq, 1)
		s.unrank(ctx, s.byMessages, name, seq, 0)
		return err
	}
	if err := s.member(name, owner).Set(fieldJoined, int64(1)).Update(ctx); err != nil {
		if derr := s.channel(name).Delete(ctx); derr != nil {
			logger.Error("channel_create_rollback_failed", "channel", name, "error", derr)
		}
		s.unrank(ctx, s.byMembers, name, seq, 1)
		s.unrank(ctx, s.byMessages, name, seq, 0)
		return err
	}
	tr.Mark("write")
	logger.Info("channel_created", "channel", name, "owner", owner, "seq", seq)
	return nil
}

// Join adds user to the channel. Joining twice is a no-op.
func (s *Service) Join(ctx context.Context, name, user string) (err error) {
	if err := validName("user", user); err != nil {
		return err
	}
	tr := telemetry.Track("channels.join")
	defer tr.Finish()
	defer func() { logFailure("channel_join_failed", name, err) }()

	unlock := s.locks.Lock(name)
	defer unlock()
	tr.Mark("lock")

	ch, err := s.load(ctx, name)
	if err != nil {
		return err
	}
	if ch.IsMember(user) {
		return nil
	}
	old := ch.MemberCount
	next := old + 1
	if err := s.byMembers.Update(ctx, name, ch.CreatedSeq, old, next); err != nil {
		return err
	}
	tr.Mark("rank")

	if err := s.member(name, user).Set(fieldJoined, next).Update(ctx); err != nil {
		s.rerank(ctx, s.byMembers, name, ch.CreatedSeq, next, old)
		return err
	}
	members := append(append([]string{}, ch.Members...), user)
	if err := s.channel(name).
		Set(fieldMemberCount, next).
		SetList(fieldMembers, members).
		Update(ctx); err != nil {
		if derr := s.member(name, user).Delete(ctx); derr != nil {
			logger.Error("member_rollback_failed", "channel", name, "user", user, "error", derr)
		}
		s.rerank(ctx, s.byMembers, name, ch.CreatedSeq, next, old)
		return err
	}
	tr.Mark("write")
	logger.Debug("channel_joined", "channel", name, "user", user, "members", next)
	return nil
}

// Leave removes user from the channel. The last member leaving deletes it.
func (s *Service) Leave(ctx context.Context, name, user string) (err error) {
	tr := telemetry.Track("channels.leave")
	defer tr.Finish()
	defer func() { logFailure("channel_leave_failed", name, err) }()

	unlock := s.locks.Lock(name)
	defer unlock()
	tr.Mark("lock")

	ch, err := s.load(ctx, name)
	if err != nil {
		return err
	}
	if !ch.IsMember(user) {
		return fmt.Errorf("%w: %s in %s", ErrNotMember, user, name)
	}
	old := ch.MemberCount
	next := old - 1
	if next <= 0 {
		return s.drop(ctx, ch)
	}
	if err := s.byMembers.Update(ctx, name, ch.CreatedSeq, old, next); err != nil {
		return err
	}
	tr.Mark("rank")

	if err := s.member(name, user).Delete(ctx); err != nil {
		s.rerank(ctx, s.byMembers, name, ch.CreatedSeq, next, old)
		return err
	}
	members := make([]string, 0, len(ch.Members)-1)
	for _, m := range ch.Members {
		if m != user {
			members = append(members, m)
		}
	}
	if err := s.channel(name).
		Set(fieldMemberCount, next).
		SetList(fieldMembers, members).
		Update(ctx); err != nil {
		s.rerank(ctx, s.byMembers, name, ch.CreatedSeq, next, old)
		return err
	}
	tr.Mark("write")
	logger.Debug("channel_left", "channel", name, "user", user, "members", next)
	return nil
}

// Post stores a message from user and returns its id.
func (s *Service) Post(ctx context.Context, name, user, text string) (id string, err error) {
	tr := telemetry.Track("channels.post")
	defer tr.Finish()
	defer func() { logFailure("channel_post_failed", name, err) }()

	unlock := s.locks.Lock(name)
	defer unlock()
	tr.Mark("lock")

	ch, err := s.load(ctx, name)
	if err != nil {
		return "", err
	}
	if !ch.IsMember(user) {
		return "", fmt.Errorf("%w: %s in %s", ErrNotMember, user, name)
	}
	old := ch.MessageCount
	next := old + 1
	if err := s.byMessages.Update(ctx, name, ch.CreatedSeq, old, next); err != nil {
		return "", err
	}
	tr.Mark("rank")

	id = uuid.NewString()
	msg := s.message(ch, id)
	if err := msg.
		Set(fieldAuthor, user).
		Set(fieldText, text).
		Set(fieldSeq, next).
		Write(ctx); err != nil {
		s.rerank(ctx, s.byMessages, name, ch.CreatedSeq, next, old)
		return "", err
	}
	if err := s.channel(name).Set(fieldMessageCount, next).Update(ctx); err != nil {
		if derr := msg.Delete(ctx); derr != nil {
			logger.Error("message_rollback_failed", "channel", name, "id", id, "error", derr)
		}
		s.rerank(ctx, s.byMessages, name, ch.CreatedSeq, next, old)
		return "", err
	}
	tr.Mark("write")
	logger.Debug("message_posted", "channel", name, "id", id, "seq", next)
	return id, nil
}

// Delete removes the channel from both rankings and tombstones it along
// with its memberships.
func (s *Service) Delete(ctx context.Context, name string) (err error) {
	tr := telemetry.Track("channels.delete")
	defer tr.Finish()
	defer func() { logFailure("channel_delete_failed", name, err) }()

	unlock := s.locks.Lock(name)
	defer unlock()
	tr.Mark("lock")

	ch, err := s.load(ctx, name)
	if err != nil {
		return err
	}
	return s.drop(ctx, ch)
}

// drop removes ch at the ranks the index currently holds for it. The
// caller holds the channel lock.
func (s *Service) drop(ctx context.Context, ch *models.Channel) error {
	if err := s.byMembers.Remove(ctx, ch.CreatedSeq, ch.MemberCount); err != nil {
		return err
	}
	if err := s.byMessages.Remove(ctx, ch.CreatedSeq, ch.MessageCount); err != nil {
		return err
	}
	for _, m := range ch.Members {
		if err := s.member(ch.Name, m).Delete(ctx); err != nil {
			return err
		}
	}
	if err := s.channel(ch.Name).Delete(ctx); err != nil {
		return err
	}
	logger.Info("channel_deleted", "channel", ch.Name)
	return nil
}

// Info returns the channel's stored state.
func (s *Service) Info(ctx context.Context, name string) (*models.Channel, error) {
	return s.load(ctx, name)
}

// IsMember reads the membership record of user in the channel.
func (s *Service) IsMember(ctx context.Context, name, user string) (bool, error) {
	if user == "" {
		return false, nil
	}
	return s.member(name, user).Exists(ctx)
}

// Message reads one posted message.
func (s *Service) Message(ctx context.Context, name, id string) (*models.Message, error) {
	ch, err := s.load(ctx, name)
	if err != nil {
		return nil, err
	}
	doc := s.message(ch, id)
	m := &models.Message{ID: id, Channel: name}
	author, found, err := doc.ReadString(ctx, fieldAuthor)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("%w: %s in %s", ErrMessageNotFound, id, name)
	}
	m.Author = author
	if m.Text, _, err = doc.ReadString(ctx, fieldText); err != nil {
		return nil, err
	}
	if m.Seq, _, err = doc.ReadInt(ctx, fieldSeq); err != nil {
		return nil, err
	}
	return m, nil
}

func (s *Service) load(ctx context.Context, name string) (*models.Channel, error) {
	if err := validName("channel", name); err != nil {
		return nil, err
	}
	doc := s.channel(name)
	owner, found, err := doc.ReadString(ctx, fieldOwner)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("%w: %s", ErrChannelNotFound, name)
	}
	ch := &models.Channel{Name: name, Owner: owner}
	if ch.CreatedSeq, _, err = doc.ReadInt(ctx, fieldCreatedSeq); err != nil {
		return nil, err
	}
	if ch.MemberCount, _, err = doc.ReadInt(ctx, fieldMemberCount); err != nil {
		return nil, err
	}
	if ch.MessageCount, _, err = doc.ReadInt(ctx, fieldMessageCount); err != nil {
		return nil, err
	}
	if ch.Members, _, err = doc.ReadList(ctx, fieldMembers); err != nil {
		return nil, err
	}
	return ch, nil
}
