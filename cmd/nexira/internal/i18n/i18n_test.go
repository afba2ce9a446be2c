package i18n

import (
	"strings"
	"testing"
)

func TestNegotiate(t *testing.T) {
	tests := []struct {
		name  string
		prefs []string
		want  Language
	}{
		{"exact vi", []string{"vi"}, Vietnamese},
		{"region es", []string{"es-MX"}, Spanish},
		{"posix locale", []string{"vi_VN.UTF-8"}, Vietnamese},
		{"accept-language", []string{"fr-CH, es;q=0.9, en;q=0.8"}, Spanish},
		{"unsupported", []string{"de"}, English},
		{"empty", nil, English},
		{"c locale", []string{"C"}, English},
		{"garbage", []string{"!!!"}, English},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Negotiate(tt.prefs...); got != tt.want {
				t.Errorf("Negotiate(%v) = %q, want %q", tt.prefs, got, tt.want)
			}
		})
	}
}

func TestFromEnv(t *testing.T) {
	env := map[string]string{"LANG": "es_ES.UTF-8", "LC_MESSAGES": "", "LC_ALL": ""}
	if got := FromEnv(func(k string) string { return env[k] }); got != Spanish {
		t.Errorf("FromEnv() = %q, want es", got)
	}

	env["LC_ALL"] = "vi_VN"
	if got := FromEnv(func(k string) string { return env[k] }); got != Vietnamese {
		t.Errorf("LC_ALL should win, got %q", got)
	}

	if got := FromEnv(func(string) string { return "" }); got != English {
		t.Errorf("empty env = %q, want en", got)
	}
}

func TestTranslator_T(t *testing.T) {
	tests := []struct {
		name string
		lang Language
		key  string
		args []any
		want string
	}{
		{"english", English, "nav.home", nil, "Home"},
		{"vietnamese", Vietnamese, "nav.home", nil, "Trang chủ"},
		{"spanish with args", Spanish, "tickets.created", []any{"TKT-1"}, "Ticket TKT-1 creado"},
		{"unknown key falls back to key", Spanish, "nav.nowhere", nil, "nav.nowhere"},
		{"invalid language is english", Language("de"), "nav.home", nil, "Home"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := New(tt.lang).T(tt.key, tt.args...); got != tt.want {
				t.Errorf("T(%q) = %q, want %q", tt.key, got, tt.want)
			}
		})
	}
}

func TestTranslator_FallsBackToEnglish(t *testing.T) {
	en["test.only_english"] = "Only English"
	defer delete(en, "test.only_english")

	if got := New(Vietnamese).T("test.only_english"); got != "Only English" {
		t.Errorf("got %q", got)
	}
}

func TestTranslator_NilIsEnglish(t *testing.T) {
	var tr *Translator
	if got := tr.T("nav.help"); got != "Help" {
		t.Errorf("got %q", got)
	}
	if tr.Language() != English {
		t.Error("nil translator should be English")
	}
}

func TestDictionaries_Complete(t *testing.T) {
	for _, lang := range []Language{Vietnamese, Spanish} {
		for key, value := range en {
			other, ok := dictionaries[lang][key]
			if !ok {
				t.Errorf("%s missing %q", lang, key)
				continue
			}
			if strings.Count(other, "%") != strings.Count(value, "%") {
				t.Errorf("%s %q has mismatched format verbs", lang, key)
			}
		}
	}
}

func TestTranslator_Title(t *testing.T) {
	if got := New(English).Title("hr analyst"); got != "Hr Analyst" {
		t.Errorf("Title() = %q", got)
	}
}

func TestLanguage_Name(t *testing.T) {
	if Vietnamese.Name() != "Tiếng Việt" || English.Name() != "English" {
		t.Error("unexpected language names")
	}
	if !Spanish.Valid() || Language("fr").Valid() {
		t.Error("Valid() mismatch")
	}
}

func TestResolveTheme(t *testing.T) {
	dark := func() bool { return true }
	light := func() bool { return false }

	tests := []struct {
		pref   string
		detect DarkBackground
		want   string
	}{
		{"light", dark, ThemeLight},
		{"DARK", light, ThemeDark},
		{"auto", dark, ThemeDark},
		{"auto", light, ThemeLight},
		{"", light, ThemeLight},
		{"sepia", dark, ThemeDark},
	}
	for _, tt := range tests {
		if got := ResolveTheme(tt.pref, tt.detect); got != tt.want {
			t.Errorf("ResolveTheme(%q) = %q, want %q", tt.pref, got, tt.want)
		}
	}
}
