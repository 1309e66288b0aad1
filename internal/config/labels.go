package config

import (
	"errors"
	"log"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// PrintLabels is the set of strings rendered on a printed invoice.
type PrintLabels struct {
	Invoice     string `mapstructure:"invoice"`
	IssueDate   string `mapstructure:"issueDate"`
	DueDate     string `mapstructure:"dueDate"`
	From        string `mapstructure:"from"`
	BillTo      string `mapstructure:"billTo"`
	Description string `mapstructure:"description"`
	Qty         string `mapstructure:"qty"`
	UnitPrice   string `mapstructure:"unitPrice"`
	LineTotal   string `mapstructure:"lineTotal"`
	Subtotal    string `mapstructure:"subtotal"`
	Total       string `mapstructure:"total"`
	Notes       string `mapstructure:"notes"`
	Terms       string `mapstructure:"terms"`
}

// LabelsConfig maps a language code to its print labels.
type LabelsConfig map[string]PrintLabels

func DefaultLabels() LabelsConfig {
	return LabelsConfig{
		"en": {
			Invoice:     "Invoice",
			IssueDate:   "Issue date",
			DueDate:     "Due date",
			From:        "From",
			BillTo:      "Bill to",
			Description: "Description",
			Qty:         "Qty",
			UnitPrice:   "Unit (CAD)",
			LineTotal:   "Line total",
			Subtotal:    "Subtotal",
			Total:       "Total",
			Notes:       "Notes",
			Terms:       "Terms",
		},
		"fr": {
			Invoice:     "Facture",
			IssueDate:   "Date d'emission",
			DueDate:     "Date d'echeance",
			From:        "De",
			BillTo:      "Facture a",
			Description: "Description",
			Qty:         "Qte",
			UnitPrice:   "Unite (CAD)",
			LineTotal:   "Total ligne",
			Subtotal:    "Sous-total",
			Total:       "Total",
			Notes:       "Notes",
			Terms:       "Modalites",
		},
	}
}

type LabelsHolder struct {
	current atomic.Value // holds LabelsConfig
}

// NewStaticLabelsHolder returns a holder that never reloads.
func NewStaticLabelsHolder(labels LabelsConfig) *LabelsHolder {
	holder := &LabelsHolder{}
	holder.current.Store(labels)
	return holder
}

func NewLabelsHolder(cfg Config) (*LabelsHolder, error) {
	v := viper.New()

	if cfg.LabelsPath != "" {
		v.SetConfigFile(cfg.LabelsPath)
	} else {
		v.SetConfigName("labels")
		v.SetConfigType("yml")
		v.AddConfigPath("/etc/invoicer")
		v.AddConfigPath(".")
	}

	defaults := DefaultLabels()
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
		return NewStaticLabelsHolder(defaults), nil
	}

	labels, err := decodeLabels(v, defaults)
	if err != nil {
		return nil, err
	}

	holder := NewStaticLabelsHolder(labels)

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		updated, err := decodeLabels(v, DefaultLabels())
		if err != nil {
			log.Printf("[labels] invalid config ignored: %v", err)
			return
		}
		holder.current.Store(updated)
		log.Printf("[labels] reloaded from %s", e.Name)
	})

	return holder, nil
}

// For returns the labels of language, falling back to English.
func (h *LabelsHolder) For(language string) PrintLabels {
	labels := h.current.Load().(LabelsConfig)
	if l, ok := labels[strings.ToLower(strings.TrimSpace(language))]; ok {
		return l
	}
	return labels["en"]
}

func decodeLabels(v *viper.Viper, defaults LabelsConfig) (LabelsConfig, error) {
	var loaded LabelsConfig
	if err := v.UnmarshalKey("labels", &loaded); err != nil {
		return nil, err
	}
	out := LabelsConfig{}
	for lang, l := range defaults {
		out[lang] = l
	}
	for lang, l := range loaded {
		out[strings.ToLower(lang)] = mergeLabels(out[strings.ToLower(lang)], l)
	}
	if _, ok := out["en"]; !ok {
		return nil, errors.New("labels.en cannot be empty")
	}
	return out, nil
}

func mergeLabels(base, override PrintLabels) PrintLabels {
	pick := func(a, b string) string {
		if strings.TrimSpace(b) != "" {
			return b
		}
		return a
	}
	return PrintLabels{
		Invoice:     pick(base.Invoice, override.Invoice),
		IssueDate:   pick(base.IssueDate, override.IssueDate),
		DueDate:     pick(base.DueDate, override.DueDate),
		From:        pick(base.From, override.From),
		BillTo:      pick(base.BillTo, override.BillTo),
		Description: pick(base.Description, override.Description),
		Qty:         pick(base.Qty, override.Qty),
		UnitPrice:   pick(base.UnitPrice, override.UnitPrice),
		LineTotal:   pick(base.LineTotal, override.LineTotal),
		Subtotal:    pick(base.Subtotal, override.Subtotal),
		Total:       pick(base.Total, override.Total),
		Notes:       pick(base.Notes, override.Notes),
		Terms:       pick(base.Terms, override.Terms),
	}
}
