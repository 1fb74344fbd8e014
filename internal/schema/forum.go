package schema

import "fmt"

// Forum entity names.
const (
	Profiles    = "profiles"
	Groups      = "groups"
	Memberships = "memberships"
	Discussions = "discussions"
	Replies     = "replies"
	Attachments = "attachments"
	Invites     = "invites"
	Reports     = "reports"
)

// ForumEntities lists the forum entities in declaration order.
var ForumEntities = []string{Profiles, Groups, Memberships, Discussions, Replies, Attachments, Invites, Reports}

// DefaultTimestamps enables timestamps on every forum entity, filling updated_at
// on create.
func DefaultTimestamps() TimestampsOptions {
	return TimestampsOptions{
		Entities:           append([]string(nil), ForumEntities...),
		SetUpdatedOnCreate: true,
	}
}

// NewForumRegistry declares the discussion-forum schema on a new Registry. The
// registry is returned unfrozen so callers may extend it before finalizing.
func NewForumRegistry(ts TimestampsOptions) (*Registry, error) {
	r := NewRegistry()

	var defErr error
	define := func(name string, fields ...Field) EntityHandle {
		if defErr != nil {
			return EntityHandle{}
		}
		h, err := r.DefineEntity(name, fields...)
		if err != nil {
			defErr = err
		}
		return h
	}

	profiles := define(Profiles,
		Text("name").Required(),
		Text("bio"),
		Text("avatar"),
		Text("user_id").Required(),
	)
	groups := define(Groups,
		Text("name").Required(),
		Text("description"),
		Enum("visibility", "public", "private").Required(),
		Text("icon"),
	)
	memberships := define(Memberships,
		Enum("role", "admin", "member").Required(),
	)
	discussions := define(Discussions,
		Text("title").Required(),
		Text("body").Required(),
		Boolean("edited").Default(false),
	)
	replies := define(Replies,
		Text("body").Required(),
		Boolean("edited").Default(false),
	)
	attachments := define(Attachments,
		Text("url").Required(),
		Text("filename").Required(),
		Number("size"),
		Text("mime_type"),
	)
	invites := define(Invites,
		Text("code").Required(),
		Text("expires_at"),
	)
	reports := define(Reports,
		Text("reason").Required(),
		Boolean("resolved").Default(false),
	)

	if defErr != nil {
		return nil, fmt.Errorf("forum schema: %w", defErr)
	}

	relations := []struct{ child, parent EntityHandle }{
		{memberships, profiles},
		{memberships, groups},
		{discussions, profiles},
		{discussions, groups},
		{replies, profiles},
		{replies, discussions},
		{attachments, profiles},
		{attachments, discussions},
		{attachments, replies},
		{invites, profiles},
		{invites, groups},
		{reports, profiles},
		{reports, discussions},
		{reports, replies},
	}
	for _, rel := range relations {
		if err := r.DefineRelation(rel.child, rel.parent, ManyToOne); err != nil {
			return nil, fmt.Errorf("forum schema: %w", err)
		}
	}

	if err := r.DefineIndex(profiles, []string{"user_id"}, true); err != nil {
		return nil, fmt.Errorf("forum schema: %w", err)
	}
	if err := r.DefineIndex(invites, []string{"code"}, true); err != nil {
		return nil, fmt.Errorf("forum schema: %w", err)
	}

	if err := r.EnableTimestamps(ts); err != nil {
		return nil, fmt.Errorf("forum schema: %w", err)
	}
	return r, nil
}

// ForumDescriptor builds and finalizes the forum schema.
func ForumDescriptor(ts TimestampsOptions) (*Descriptor, error) {
	r, err := NewForumRegistry(ts)
	if err != nil {
		return nil, err
	}
	return r.ToDescriptor(), nil
}
