package forum

import (
	"context"
	"fmt"

	"cultivate/internal/schema"
)

// SeedStep names a stage of the seed procedure.
type SeedStep string

const (
	StepAdmin       SeedStep = "admin"
	StepProfile     SeedStep = "profile"
	StepGroup       SeedStep = "group"
	StepMembership  SeedStep = "membership"
	StepDiscussions SeedStep = "discussions"
	StepReplies     SeedStep = "replies"
	StepInvite      SeedStep = "invite"
)

// SeedError reports the step at which seeding stopped.
type SeedError struct {
	Step SeedStep
	Err  error
}

func (e *SeedError) Error() string {
	return fmt.Sprintf("seed %s: %v", e.Step, e.Err)
}

func (e *SeedError) Unwrap() error { return e.Err }

// Demo data inserted by the seed procedure.
const (
	SeedProfileUserID = "seed-user"
	SeedInviteCode    = "welcome-to-the-porch"
	AdminRole         = "admin"
)

// SeedResult holds the identifiers produced by a successful seed.
type SeedResult struct {
	Admin         *User
	ProfileID     int64
	GroupID       int64
	MembershipID  int64
	DiscussionIDs [2]int64
	ReplyIDs      []int64
	InviteID      int64
}

// Seeder populates a freshly provisioned database with baseline data.
type Seeder struct {
	data   DataContext
	auth   UserCreator
	logger Logger
}

// NewSeeder creates a Seeder. auth may be nil when no admin account will be created.
func NewSeeder(data DataContext, auth UserCreator, logger Logger) *Seeder {
	return &Seeder{data: data, auth: auth, logger: logger}
}

// Seed runs the seed steps in order. Each step consumes the identifiers of the
// previous ones, so the steps never overlap. The first failing step aborts the
// rest and is reported as a *SeedError; rows written by earlier steps stay.
// A nil admin skips account creation.
func (s *Seeder) Seed(ctx context.Context, admin *AdminCredentials) (*SeedResult, error) {
	res := &SeedResult{}

	if admin != nil {
		u, err := s.createAdmin(ctx, admin)
		if err != nil {
			return nil, &SeedError{Step: StepAdmin, Err: err}
		}
		res.Admin = u
		s.logger.Info("admin account created", "email", u.Email)
	} else {
		s.logger.Debug("admin credentials not supplied, skipping admin account")
	}

	profileID, err := s.insertOne(ctx, schema.Profiles, Record{
		"name":    "Demo User",
		"bio":     "Just a person who likes calm conversations.",
		"user_id": SeedProfileUserID,
	})
	if err != nil {
		return nil, &SeedError{Step: StepProfile, Err: err}
	}
	res.ProfileID = profileID

	groupID, err := s.insertOne(ctx, schema.Groups, Record{
		"name":        "The Front Porch",
		"description": "A place for unhurried conversation. Grab a seat, stay a while.",
		"visibility":  "public",
	})
	if err != nil {
		return nil, &SeedError{Step: StepGroup, Err: err}
	}
	res.GroupID = groupID

	membershipID, err := s.insertOne(ctx, schema.Memberships, Record{
		"role":       AdminRole,
		"profile_id": profileID,
		"group_id":   groupID,
	})
	if err != nil {
		return nil, &SeedError{Step: StepMembership, Err: err}
	}
	res.MembershipID = membershipID

	discussions, err := s.insertDiscussions(ctx, profileID, groupID)
	if err != nil {
		return nil, &SeedError{Step: StepDiscussions, Err: err}
	}
	res.DiscussionIDs = discussions

	replies, err := s.insertReplies(ctx, profileID, discussions)
	if err != nil {
		return nil, &SeedError{Step: StepReplies, Err: err}
	}
	res.ReplyIDs = replies

	inviteID, err := s.insertOne(ctx, schema.Invites, Record{
		"code":       SeedInviteCode,
		"profile_id": profileID,
		"group_id":   groupID,
	})
	if err != nil {
		return nil, &SeedError{Step: StepInvite, Err: err}
	}
	res.InviteID = inviteID

	s.logger.Info("seed complete",
		"profile_id", profileID,
		"group_id", groupID,
		"discussions", len(discussions),
		"replies", len(replies),
	)
	return res, nil
}

func (s *Seeder) createAdmin(ctx context.Context, admin *AdminCredentials) (*User, error) {
	if s.auth == nil {
		return nil, fmt.Errorf("no auth subsystem configured")
	}
	return s.auth.CreateUser(ctx, NewUser{
		Email:    admin.Email,
		Password: admin.Password,
		Role:     AdminRole,
	})
}

func (s *Seeder) insertOne(ctx context.Context, entity string, rec Record) (int64, error) {
	m, err := s.data.Mutator(entity)
	if err != nil {
		return 0, err
	}
	res, err := m.InsertOne(ctx, rec)
	if err != nil {
		return 0, fmt.Errorf("inserting into %s: %w", entity, err)
	}
	id, err := insertedID(res)
	if err != nil {
		return 0, fmt.Errorf("inserting into %s: %w", entity, err)
	}
	s.logger.Debug("seed row inserted", "entity", entity, "id", id)
	return id, nil
}

func (s *Seeder) insertDiscussions(ctx context.Context, profileID, groupID int64) ([2]int64, error) {
	var ids [2]int64

	first, err := s.insertOne(ctx, schema.Discussions, Record{
		"title":      "What book changed how you think?",
		"body":       "I just finished re-reading *Designing Data-Intensive Applications* for the third time. Every read surfaces something new.\n\nWhat's a book that genuinely shifted your perspective — on technology, life, anything?",
		"profile_id": profileID,
		"group_id":   groupID,
	})
	if err != nil {
		return ids, err
	}
	ids[0] = first

	second, err := s.insertOne(ctx, schema.Discussions, Record{
		"title":      "The case for building slower",
		"body":       "We optimize for speed constantly — fast deploys, fast iterations, fast feedback loops. But some of the best things I've built came from slowing down.\n\nAnyone else find that the best work happens when you resist the urge to ship immediately?",
		"profile_id": profileID,
		"group_id":   groupID,
	})
	if err != nil {
		return ids, err
	}
	ids[1] = second

	return ids, nil
}

// insertReplies writes all three replies in one batch: two under the first
// discussion and one under the second.
func (s *Seeder) insertReplies(ctx context.Context, profileID int64, discussions [2]int64) ([]int64, error) {
	m, err := s.data.Mutator(schema.Replies)
	if err != nil {
		return nil, err
	}

	res, err := m.InsertMany(ctx, []Record{
		{
			"body":          "For me it was *Sapiens* by Yuval Noah Harari. Completely reframed how I think about the stories we tell ourselves as a society.",
			"profile_id":    profileID,
			"discussion_id": discussions[0],
		},
		{
			"body":          "I keep coming back to *The Pragmatic Programmer*. Not flashy, but it shaped how I approach problems daily.",
			"profile_id":    profileID,
			"discussion_id": discussions[0],
		},
		{
			"body":          "Totally agree. I once spent a whole weekend just *thinking* about an architecture before writing a line of code. It was the cleanest system I ever built.",
			"profile_id":    profileID,
			"discussion_id": discussions[1],
		},
	})
	if err != nil {
		return nil, fmt.Errorf("inserting into %s: %w", schema.Replies, err)
	}
	if res == nil {
		return nil, fmt.Errorf("inserting into %s: insert returned no data", schema.Replies)
	}

	ids := make([]int64, 0, len(res.Data))
	for _, rec := range res.Data {
		ids = append(ids, rec.ID())
	}
	return ids, nil
}
