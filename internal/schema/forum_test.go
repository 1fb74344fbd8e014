package schema

import (
	"bytes"
	"go/parser"
	"go/token"
	"strings"
	"testing"
)

func TestForumDescriptor(t *testing.T) {
	d, err := ForumDescriptor(DefaultTimestamps())
	if err != nil {
		t.Fatalf("ForumDescriptor() error = %v", err)
	}

	t.Run("entities and fields", func(t *testing.T) {
		want := map[string][]string{
			Profiles:    {"name*", "bio", "avatar", "user_id*"},
			Groups:      {"name*", "description", "visibility*", "icon"},
			Memberships: {"role*"},
			Discussions: {"title*", "body*", "edited"},
			Replies:     {"body*", "edited"},
			Attachments: {"url*", "filename*", "size", "mime_type"},
			Invites:     {"code*", "expires_at"},
			Reports:     {"reason*", "resolved"},
		}
		if len(d.Entities) != len(want) {
			t.Fatalf("len(Entities) = %d, want %d", len(d.Entities), len(want))
		}
		for name, fields := range want {
			e, ok := d.Entity(name)
			if !ok {
				t.Errorf("entity %s missing", name)
				continue
			}
			var got []string
			for _, f := range e.Fields {
				s := f.Name
				if f.Required {
					s += "*"
				}
				got = append(got, s)
			}
			if strings.Join(got, ",") != strings.Join(fields, ",") {
				t.Errorf("%s fields = %v, want %v", name, got, fields)
			}
			if e.Timestamps == nil || !e.Timestamps.SetUpdatedOnCreate {
				t.Errorf("%s timestamps = %+v", name, e.Timestamps)
			}
		}
	})

	t.Run("boolean defaults", func(t *testing.T) {
		for _, ref := range [][2]string{{Discussions, "edited"}, {Replies, "edited"}, {Reports, "resolved"}} {
			e, _ := d.Entity(ref[0])
			f, ok := e.Field(ref[1])
			if !ok {
				t.Fatalf("%s.%s missing", ref[0], ref[1])
			}
			if f.Type != TypeBoolean || f.Default != false {
				t.Errorf("%s.%s = %+v, want boolean default false", ref[0], ref[1], f)
			}
		}
	})

	t.Run("relations", func(t *testing.T) {
		want := map[string]string{
			Memberships: "profile_id,group_id",
			Discussions: "profile_id,group_id",
			Replies:     "profile_id,discussion_id",
			Attachments: "profile_id,discussion_id,reply_id",
			Invites:     "profile_id,group_id",
			Reports:     "profile_id,discussion_id,reply_id",
		}
		for child, cols := range want {
			var got []string
			for _, r := range d.RelationsFrom(child) {
				if r.Cardinality != ManyToOne {
					t.Errorf("%s -> %s cardinality = %s", r.Child, r.Parent, r.Cardinality)
				}
				got = append(got, r.Column)
			}
			if strings.Join(got, ",") != cols {
				t.Errorf("%s relation columns = %v, want %s", child, got, cols)
			}
		}

		p, _ := d.Entity(Profiles)
		if len(p.Children) != 6 {
			t.Errorf("profiles children = %v, want 6 entries", p.Children)
		}
		g, _ := d.Entity(Groups)
		if strings.Join(g.Children, ",") != "memberships,discussions,invites" {
			t.Errorf("groups children = %v", g.Children)
		}
	})

	t.Run("unique indices", func(t *testing.T) {
		if len(d.Indices) != 2 {
			t.Fatalf("len(Indices) = %d, want 2", len(d.Indices))
		}
		for i, want := range []struct{ entity, field string }{{Profiles, "user_id"}, {Invites, "code"}} {
			idx := d.Indices[i]
			if idx.Entity != want.entity || len(idx.Fields) != 1 || idx.Fields[0] != want.field || !idx.Unique {
				t.Errorf("Indices[%d] = %+v, want unique %s(%s)", i, idx, want.entity, want.field)
			}
		}
	})
}

func TestNewForumRegistry_Extendable(t *testing.T) {
	r, err := NewForumRegistry(TimestampsOptions{})
	if err != nil {
		t.Fatalf("NewForumRegistry() error = %v", err)
	}
	if _, err := r.DefineEntity(Profiles, Text("name")); err == nil {
		t.Error("redefining profiles succeeded, want conflict")
	}
	if _, err := r.DefineEntity("reactions", Text("emoji").Required()); err != nil {
		t.Errorf("DefineEntity(reactions) error = %v", err)
	}
	e, _ := r.ToDescriptor().Entity(Profiles)
	if e.Timestamps != nil {
		t.Errorf("profiles timestamps = %+v, want none", e.Timestamps)
	}
}

func TestWriteTypes(t *testing.T) {
	d, err := ForumDescriptor(DefaultTimestamps())
	if err != nil {
		t.Fatalf("ForumDescriptor() error = %v", err)
	}

	var buf bytes.Buffer
	if err := WriteTypes(&buf, d, "forumtypes"); err != nil {
		t.Fatalf("WriteTypes() error = %v", err)
	}
	src := buf.String()

	if _, err := parser.ParseFile(token.NewFileSet(), "types.go", src, 0); err != nil {
		t.Fatalf("generated source does not parse: %v", err)
	}

	for _, want := range []string{
		"package forumtypes",
		"type Profile struct",
		"type Reply struct",
		"UserID string `json:\"user_id\"`",
		"Bio *string `json:\"bio,omitempty\"`",
		"Edited bool `json:\"edited\"`",
		"Size *float64 `json:\"size,omitempty\"`",
		"DiscussionID *int64 `json:\"discussion_id,omitempty\"`",
		"CreatedAt *time.Time",
	} {
		if !strings.Contains(strings.Join(strings.Fields(src), " "), want) {
			t.Errorf("generated source missing %q", want)
		}
	}
}

func TestTypeName(t *testing.T) {
	tests := map[string]string{
		"profiles":    "Profile",
		"replies":     "Reply",
		"discussions": "Discussion",
		"memberships": "Membership",
		"attachments": "Attachment",
	}
	for in, want := range tests {
		if got := TypeName(in); got != want {
			t.Errorf("TypeName(%q) = %q, want %q", in, got, want)
		}
	}
}
