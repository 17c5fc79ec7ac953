package ezlist

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"text/template"
)

// TemplateData carries the substitution parameters available to
// notification templates.
type TemplateData struct {
	// List is the mailing list address.
	List string
	// Key is the deletion key. Only set for the welcome template.
	Key string
}

// Templates holds the localized bodies of the four notification mails.
type Templates struct {
	// Subscription is sent in reply to a subscribe request; the mail's
	// subject carries the activation key.
	Subscription *template.Template
	// Welcome is sent after successful verification and must mention the
	// deletion key ({{.Key}}).
	Welcome *template.Template
	// DeletionKey is sent when a subscriber asks for the deletion key to
	// be re-sent; the mail's subject carries the key.
	DeletionKey *template.Template
	// Unsubscribe confirms a completed unsubscription.
	Unsubscribe *template.Template
}

// Built-in English notification texts.
const (
	defaultSubscriptionText = `Hello,

this mailing list ({{.List}}) received a subscription request for your
address. To confirm, reply to this mail without changing the subject line.

If you did not request this, simply ignore this mail.
`

	defaultWelcomeText = `Welcome,

you have successfully joined the mailing list {{.List}}.

To leave the list at any time, send a mail to {{.List}} with the subject:

    unsubscribe <{{.Key}}>

Keep this key private.
`

	defaultDeletionKeyText = `Hello,

you asked for your deletion key for the mailing list {{.List}}. To leave
the list, reply to this mail without changing the subject line.

If you did not request this, simply ignore this mail.
`

	defaultUnsubscribeText = `Goodbye,

you have been removed from the mailing list {{.List}}. You will not
receive any further mail from it.
`
)

// DefaultTemplates returns the built-in English notification templates.
func DefaultTemplates() Templates {
	return Templates{
		Subscription: template.Must(template.New("subscription").Parse(defaultSubscriptionText)),
		Welcome:      template.Must(template.New("welcome").Parse(defaultWelcomeText)),
		DeletionKey:  template.Must(template.New("deletion_key").Parse(defaultDeletionKeyText)),
		Unsubscribe:  template.Must(template.New("unsubscribe").Parse(defaultUnsubscribeText)),
	}
}

// ParseTemplates parses the four notification bodies from raw text, e.g.
// loaded from a localized template directory.
func ParseTemplates(subscription, welcome, deletionKey, unsubscribe string) (Templates, error) {
	var t Templates
	var err error

	if t.Subscription, err = template.New("subscription").Parse(subscription); err != nil {
		return Templates{}, fmt.Errorf("parse subscription template: %w", err)
	}
	if t.Welcome, err = template.New("welcome").Parse(welcome); err != nil {
		return Templates{}, fmt.Errorf("parse welcome template: %w", err)
	}
	if t.DeletionKey, err = template.New("deletion_key").Parse(deletionKey); err != nil {
		return Templates{}, fmt.Errorf("parse deletion_key template: %w", err)
	}
	if t.Unsubscribe, err = template.New("unsubscribe").Parse(unsubscribe); err != nil {
		return Templates{}, fmt.Errorf("parse unsubscribe template: %w", err)
	}
	return t, nil
}

// LoadTemplates reads notification bodies from dir. Each template is
// read from its own file (subscription.txt, welcome.txt,
// deletion_key.txt, unsubscribe.txt); missing files fall back to the
// built-in English texts.
func LoadTemplates(dir string) (Templates, error) {
	read := func(name, fallback string) (string, error) {
		raw, err := os.ReadFile(filepath.Join(dir, name))
		if errors.Is(err, fs.ErrNotExist) {
			return fallback, nil
		}
		if err != nil {
			return "", err
		}
		return string(raw), nil
	}

	subscription, err := read("subscription.txt", defaultSubscriptionText)
	if err != nil {
		return Templates{}, err
	}
	welcome, err := read("welcome.txt", defaultWelcomeText)
	if err != nil {
		return Templates{}, err
	}
	deletionKey, err := read("deletion_key.txt", defaultDeletionKeyText)
	if err != nil {
		return Templates{}, err
	}
	unsubscribe, err := read("unsubscribe.txt", defaultUnsubscribeText)
	if err != nil {
		return Templates{}, err
	}
	return ParseTemplates(subscription, welcome, deletionKey, unsubscribe)
}

// render executes a notification template.
func render(t *template.Template, data TemplateData) (string, error) {
	var buf strings.Builder
	if err := t.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render %s template: %w", t.Name(), err)
	}
	return buf.String(), nil
}
