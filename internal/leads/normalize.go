package leads

import (
	"maps"
	"slices"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/AngelCh415/insights-sync/internal/models"
)

type source func(raw map[string]string) string

func field(keys ...string) source {
	return func(raw map[string]string) string {
		for _, k := range keys {
			if v := lookup(raw, k); v != "" {
				return v
			}
		}
		return ""
	}
}

func joined(sep string, parts ...source) source {
	return func(raw map[string]string) string {
		var out []string
		for _, p := range parts {
			if v := p(raw); v != "" {
				out = append(out, v)
			}
		}
		return strings.Join(out, sep)
	}
}

func mapped(s source, fn func(string) string) source {
	return func(raw map[string]string) string {
		if v := s(raw); v != "" {
			return fn(v)
		}
		return ""
	}
}

func resolve(raw map[string]string, chain []source) string {
	for _, s := range chain {
		if v := strings.TrimSpace(s(raw)); v != "" {
			return v
		}
	}
	return ""
}

var (
	emailChain = []source{
		mapped(field("email"), strings.ToLower),
		mapped(field("work_email", "correo_electronico", "E-mail"), strings.ToLower),
	}
	nameChain = []source{
		field("full_name"),
		field("fullname", "Full Name", "nombre_completo", "name"),
		joined(" ", field("first_name"), field("last_name")),
		func(raw map[string]string) string { return nameFromEmail(resolve(raw, emailChain)) },
	}
	phoneChain = []source{
		field("phone_number"),
		field("phone", "mobile_number", "telefono", "whatsapp_number"),
	}
	companyChain = []source{
		field("company_name"),
		field("company", "business_name", "empresa", "organization"),
	}
)

func nameFromEmail(email string) string {
	local, _, ok := strings.Cut(email, "@")
	if !ok || local == "" {
		return ""
	}
	local = strings.NewReplacer(".", " ", "_", " ", "-", " ", "+", " ").Replace(local)
	// Caser guarda estado: uno por llamada
	return cases.Title(language.Und).String(strings.Join(strings.Fields(local), " "))
}

func Normalize(id string, raw map[string]string) models.LeadFields {
	f := models.LeadFields{
		Name:    resolve(raw, nameChain),
		Email:   resolve(raw, emailChain),
		Phone:   resolve(raw, phoneChain),
		Company: resolve(raw, companyChain),
	}
	if f.Name == "" {
		f.Name = "Lead " + id
	}
	return f
}

func lookup(raw map[string]string, key string) string {
	if v := strings.TrimSpace(raw[key]); v != "" {
		return v
	}
	want := foldKey(key)
	for _, k := range slices.Sorted(maps.Keys(raw)) {
		if foldKey(k) != want {
			continue
		}
		if v := strings.TrimSpace(raw[k]); v != "" {
			return v
		}
	}
	return ""
}

func foldKey(k string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case ' ', '-', '_':
			return -1
		}
		return r
	}, strings.ToLower(k))
}
