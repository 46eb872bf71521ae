package security

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/nextlevelbuilder/goclaw/internal/config"
)

// Trigger is one matcher kind for an auto-reply template.
const (
	TriggerExact    = "exact"
	TriggerRegex    = "regex"
	TriggerKeyword  = "keyword"
	TriggerCommand  = "command"
	TriggerSchedule = "schedule"
)

// AutoReplyMatch describes the template that matched, for callers to log
// or to decide whether to continue routing.
type AutoReplyMatch struct {
	Name        string
	Response    string
	ForwardToAI bool
}

// compiledTemplate caches a template's compiled regex (if any) and its
// per-sender cooldown/once state.
type compiledTemplate struct {
	config.AutoReplyTemplate
	re *regexp.Regexp

	mu       sync.Mutex
	lastHit  map[string]time.Time // senderKey -> last match time
	usedOnce map[string]bool
}

// Engine evaluates auto-reply templates in descending priority order.
type Engine struct {
	templates []*compiledTemplate
	now       func() time.Time
}

// NewEngine compiles cfg's templates, sorted by descending priority.
func NewEngine(cfg config.AutoReplyConfig) (*Engine, error) {
	e := &Engine{now: time.Now}
	for _, t := range cfg.Templates {
		ct := &compiledTemplate{
			AutoReplyTemplate: t,
			lastHit:           make(map[string]time.Time),
			usedOnce:          make(map[string]bool),
		}
		if t.Trigger == TriggerRegex {
			re, err := regexp.Compile("(?i)" + t.Pattern)
			if err != nil {
				return nil, fmt.Errorf("auto-reply template %q: compile regex: %w", t.Name, err)
			}
			ct.re = re
		}
		e.templates = append(e.templates, ct)
	}
	sort.SliceStable(e.templates, func(i, j int) bool {
		return e.templates[i].Priority > e.templates[j].Priority
	})
	return e, nil
}

// MatchInput carries the context an auto-reply template filter checks
// against.
type MatchInput struct {
	Text       string
	Channel    string
	ChatType   string
	SenderID   string
	SenderName string
}

// Match returns the first matching template's rendered response, or nil if
// none match. The caller is responsible for sending Response and, if
// ForwardToAI is false, stopping routing.
func (e *Engine) Match(in MatchInput) *AutoReplyMatch {
	for _, ct := range e.templates {
		if !ct.appliesTo(in) {
			continue
		}
		if !ct.matches(in.Text, e.now()) {
			continue
		}
		if !ct.allowFire(in.SenderID, e.now()) {
			continue
		}
		return &AutoReplyMatch{
			Name:        ct.Name,
			Response:    render(ct.Response, in, e.now()),
			ForwardToAI: ct.ForwardToAI,
		}
	}
	return nil
}

func (ct *compiledTemplate) appliesTo(in MatchInput) bool {
	if len(ct.Channels) > 0 && !contains(ct.Channels, in.Channel) {
		return false
	}
	if len(ct.ChatTypes) > 0 && !contains(ct.ChatTypes, in.ChatType) {
		return false
	}
	return true
}

func (ct *compiledTemplate) matches(text string, now time.Time) bool {
	trimmed := strings.TrimSpace(text)
	switch ct.Trigger {
	case TriggerExact:
		return strings.EqualFold(trimmed, strings.TrimSpace(ct.Pattern))
	case TriggerRegex:
		return ct.re != nil && ct.re.MatchString(text)
	case TriggerKeyword:
		lower := strings.ToLower(text)
		for _, kw := range ct.Keywords {
			if strings.Contains(lower, strings.ToLower(kw)) {
				return true
			}
		}
		return false
	case TriggerCommand:
		cmd := ct.Command
		if !strings.HasPrefix(cmd, "/") {
			cmd = "/" + cmd
		}
		fields := strings.Fields(trimmed)
		return len(fields) > 0 && strings.EqualFold(fields[0], cmd)
	case TriggerSchedule:
		return scheduleMatches(ct.AutoReplyTemplate, now)
	default:
		return false
	}
}

func scheduleMatches(t config.AutoReplyTemplate, now time.Time) bool {
	if len(t.DaysOfWeek) > 0 && !containsInt(t.DaysOfWeek, int(now.Weekday())) {
		return false
	}
	if t.HoursStart == t.HoursEnd {
		return true
	}
	hour := now.Hour()
	if t.HoursStart < t.HoursEnd {
		return hour >= t.HoursStart && hour < t.HoursEnd
	}
	// window wraps past midnight
	return hour >= t.HoursStart || hour < t.HoursEnd
}

// allowFire enforces per-sender cooldown and the once flag.
func (ct *compiledTemplate) allowFire(senderID string, now time.Time) bool {
	ct.mu.Lock()
	defer ct.mu.Unlock()

	if ct.Once && ct.usedOnce[senderID] {
		return false
	}
	if ct.CooldownMs > 0 {
		if last, ok := ct.lastHit[senderID]; ok {
			if now.Sub(last) < time.Duration(ct.CooldownMs)*time.Millisecond {
				return false
			}
		}
	}
	ct.lastHit[senderID] = now
	if ct.Once {
		ct.usedOnce[senderID] = true
	}
	return true
}

func render(tmpl string, in MatchInput, now time.Time) string {
	replacer := strings.NewReplacer(
		"{sender.name}", in.SenderName,
		"{sender.id}", in.SenderID,
		"{channel}", in.Channel,
		"{time}", now.Format("15:04"),
		"{date}", now.Format("2006-01-02"),
	)
	return replacer.Replace(tmpl)
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if strings.EqualFold(s, v) {
			return true
		}
	}
	return false
}

func containsInt(list []int, v int) bool {
	for _, n := range list {
		if n == v {
			return true
		}
	}
	return false
}
