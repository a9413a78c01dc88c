package store

import (
	"testing"

	"github.com/steveyegge/locsync/internal/vcs"
)

func TestUserSignature(t *testing.T) {
	tests := []struct {
		user User
		want string
	}{
		{User{Name: "Ana Novak", Email: "ana@example.com"}, "Ana Novak <ana@example.com>"},
		{User{Email: "bob@example.com"}, "bob <bob@example.com>"},
	}
	for _, tt := range tests {
		if got := tt.user.Signature(); got != tt.want {
			t.Errorf("Signature() = %q, want %q", got, tt.want)
		}
	}
}

func TestRepositoryURLFor(t *testing.T) {
	multi := &Repository{URL: "https://hg.example.com/l10n/{locale_code}/app"}
	if !multi.MultiLocale() {
		t.Error("MultiLocale() = false for templated URL")
	}
	if got := multi.URLFor("pt-BR"); got != "https://hg.example.com/l10n/pt-BR/app" {
		t.Errorf("URLFor() = %q", got)
	}

	single := &Repository{URL: "https://example.com/app.git"}
	if single.MultiLocale() || single.URLFor("de") != single.URL {
		t.Error("single-locale repository URL should not change")
	}
}

func TestRepositoryValidate(t *testing.T) {
	tests := []struct {
		name    string
		repo    Repository
		wantErr bool
	}{
		{"valid", Repository{Type: vcs.TypeGit, Role: RoleSource, URL: "u"}, false},
		{"mercurial alias", Repository{Type: "mercurial", Role: RoleTarget, URL: "u"}, false},
		{"missing url", Repository{Type: vcs.TypeGit, Role: RoleSource}, true},
		{"unknown type", Repository{Type: "cvs", Role: RoleSource, URL: "u"}, true},
		{"unknown role", Repository{Type: vcs.TypeSVN, Role: "mirror", URL: "u"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.repo.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestChangeBatchEmpty(t *testing.T) {
	b := &ChangeBatch{}
	if !b.Empty() {
		t.Error("new batch should be empty")
	}
	b.UpdateTranslations = append(b.UpdateTranslations, &Translation{})
	b.CreateEntities = append(b.CreateEntities, &Entity{})
	if b.Empty() || b.Len() != 2 {
		t.Errorf("Len() = %d, want 2", b.Len())
	}
}

func TestEntityCloneIsDeep(t *testing.T) {
	e := &Entity{Comments: []string{"a"}, Translations: []*Translation{{String: "x"}}}
	c := e.Clone()
	c.Comments[0] = "b"
	c.Translations[0].String = "y"
	if e.Comments[0] != "a" || e.Translations[0].String != "x" {
		t.Errorf("Clone() shares memory: %+v", e)
	}
}
