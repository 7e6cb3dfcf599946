package config

import (
	"strings"
	"time"

	"go.trai.ch/zerr"
)

// StepKind selects how a group step is executed.
type StepKind int

const (
	// StepNormal makes a single match attempt and taps on a hit.
	StepNormal StepKind = iota
	// StepRequiredClick retries until the template is tapped.
	StepRequiredClick
	// StepLastInGroup taps every visible instance until none remain.
	StepLastInGroup
	// StepCustomWait taps on a hit and then waits a fixed duration.
	StepCustomWait
)

var stepKindNames = map[StepKind]string{
	StepNormal:        "normal",
	StepRequiredClick: "required_click",
	StepLastInGroup:   "last_in_group",
	StepCustomWait:    "custom_wait",
}

func (k StepKind) String() string {
	if n, ok := stepKindNames[k]; ok {
		return n
	}
	return "unknown"
}

// ParseStepKind maps a config string to a StepKind. The empty string is
// reported as ok=false so callers can infer the kind.
func ParseStepKind(s string) (StepKind, bool, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return StepNormal, false, nil
	}
	for k, n := range stepKindNames {
		if n == s {
			return k, true, nil
		}
	}
	return StepNormal, false, zerr.With(zerr.Wrap(ErrInvalidStep, "unknown step kind"), "kind", s)
}

// GroupSpec is the file representation of a task group.
type GroupSpec struct {
	Name          string     `json:"name"`
	Priority      int        `json:"priority"`
	IndexTemplate string     `json:"index_template"`
	Steps         []StepSpec `json:"steps"`
}

// StepSpec is the file representation of one group step. An empty Kind is
// inferred: custom_wait when WaitMs is set, last_in_group for the final step,
// normal otherwise.
type StepSpec struct {
	Template     string `json:"template"`
	Kind         string `json:"kind,omitempty"`
	WaitMs       int    `json:"wait_ms,omitempty"`
	WaitOnMiss   bool   `json:"wait_on_miss,omitempty"`
	PickLeftmost bool   `json:"pick_leftmost,omitempty"`
	CornerTaps   int    `json:"corner_taps,omitempty"`
}

// Step is a resolved group step.
type Step struct {
	Template     string
	Kind         StepKind
	Wait         time.Duration
	WaitOnMiss   bool
	PickLeftmost bool
	CornerTaps   int
}

// GroupDef is a resolved task group.
type GroupDef struct {
	Name          string
	Priority      int
	IndexTemplate string
	Steps         []Step
}

// Templates lists every template name the group references, index first.
func (g GroupDef) Templates() []string {
	out := make([]string, 0, len(g.Steps)+1)
	out = append(out, g.IndexTemplate)
	for _, s := range g.Steps {
		out = append(out, s.Template)
	}
	return out
}

// ResolveGroups turns the file group specs into tagged definitions. The order
// of the result is the configured order.
func (c *Config) ResolveGroups() ([]GroupDef, error) {
	seen := make(map[string]struct{}, len(c.Groups))
	out := make([]GroupDef, 0, len(c.Groups))
	for gi, gs := range c.Groups {
		name := strings.TrimSpace(gs.Name)
		if name == "" {
			return nil, zerr.With(zerr.Wrap(ErrInvalidGroup, "group name is empty"), "index", gi)
		}
		if _, dup := seen[name]; dup {
			return nil, zerr.With(zerr.Wrap(ErrInvalidGroup, "duplicate group name"), "group", name)
		}
		seen[name] = struct{}{}
		if strings.TrimSpace(gs.IndexTemplate) == "" {
			return nil, zerr.With(zerr.Wrap(ErrInvalidGroup, "index template is empty"), "group", name)
		}
		if len(gs.Steps) == 0 {
			return nil, zerr.With(zerr.Wrap(ErrInvalidGroup, "group has no steps"), "group", name)
		}
		def := GroupDef{Name: name, Priority: gs.Priority, IndexTemplate: gs.IndexTemplate}
		for si, ss := range gs.Steps {
			st, err := resolveStep(ss, si == len(gs.Steps)-1)
			if err != nil {
				return nil, zerr.With(zerr.With(err, "group", name), "step", si)
			}
			def.Steps = append(def.Steps, st)
		}
		out = append(out, def)
	}
	return out, nil
}

func resolveStep(ss StepSpec, last bool) (Step, error) {
	if strings.TrimSpace(ss.Template) == "" {
		return Step{}, zerr.Wrap(ErrInvalidStep, "step template is empty")
	}
	if ss.WaitMs < 0 || ss.CornerTaps < 0 {
		return Step{}, zerr.Wrap(ErrInvalidStep, "negative step parameter")
	}
	kind, explicit, err := ParseStepKind(ss.Kind)
	if err != nil {
		return Step{}, err
	}
	if !explicit {
		switch {
		case ss.WaitMs > 0:
			kind = StepCustomWait
		case last:
			kind = StepLastInGroup
		}
	}
	if kind == StepCustomWait && ss.WaitMs == 0 {
		return Step{}, zerr.With(zerr.Wrap(ErrInvalidStep, "custom_wait step needs wait_ms"), "template", ss.Template)
	}
	return Step{
		Template:     ss.Template,
		Kind:         kind,
		Wait:         time.Duration(ss.WaitMs) * time.Millisecond,
		WaitOnMiss:   ss.WaitOnMiss,
		PickLeftmost: ss.PickLeftmost,
		CornerTaps:   ss.CornerTaps,
	}, nil
}

// DefaultFocusSequence is the group rotation used after a reward proceed tap.
var DefaultFocusSequence = []string{
	"elite_dungeon",
	"guild_blessing",
	"gold_fortune",
	"recruit",
	"squad_raid",
	"ranked_match",
	"survival_challenge",
	"mission_hall",
}

func steps(templates ...string) []StepSpec {
	out := make([]StepSpec, len(templates))
	for i, t := range templates {
		out[i] = StepSpec{Template: t}
	}
	return out
}

// DefaultGroups returns the built-in group table.
func DefaultGroups() []GroupSpec {
	squadSortie := StepSpec{Template: "xiaoduituxichuzhan.png", WaitMs: 60000, WaitOnMiss: true}
	eliteSweep := StepSpec{Template: "bianjiesaodang.jpg", PickLeftmost: true}

	return []GroupSpec{
		{
			Name:          "recruit",
			Priority:      4,
			IndexTemplate: "putongzhaomu.png",
			Steps: steps("putongzhaomu.png", "mianfei3.jpg", "queding.png", "queding.png", "queding.png",
				"zhaomuchahao.png", "zhaomuchahao.png"),
		},
		{
			Name:          "elite_dungeon",
			Priority:      1,
			IndexTemplate: "jingyingfuben.png",
			Steps: append([]StepSpec{{Template: "jingyingfuben.png"}, eliteSweep},
				steps("yijianquanxuan.png", "saodang.png", "jixusaodang.png",
					"jingyingfubenchahao.png", "jingyingfubenchahao.png", "jingyingfubenchahao.png",
					"jingyingfubenchahao.png", "jingyingfubenchahao.png", "jingyingfubenchahao.png")...),
		},
		{
			Name:          "guild_blessing",
			Priority:      2,
			IndexTemplate: "fenxiangqifu.png",
			Steps: steps("fenxiangqifu.png", "zuzhiqifuchahao1.png", "zuzhiqifuchahao2.png",
				"zuzhiqifuchahao2.png", "zuzhiqifuchahao2.png", "zuzhiqifuchahao2.png"),
		},
		{
			Name:          "gold_fortune",
			Priority:      3,
			IndexTemplate: "mianfeiyici.png",
			Steps:         steps("mianfeiyici.png", "mianfeiyici.png", "zhaocaichahao.png"),
		},
		{
			Name:          "squad_raid",
			Priority:      5,
			IndexTemplate: "xiaoduituxipipei.png",
			Steps: []StepSpec{
				{Template: "xiaoduituxipipei.png"},
				squadSortie,
				{Template: "xiaoduituxipipei.png"},
				squadSortie,
				{Template: "xiaoduituxiguanbi.png"},
				{Template: "xiaoduituxiguanbi.png"},
				{Template: "xiaoduituxiguanbi.png"},
			},
		},
		{
			Name:          "ranked_match",
			Priority:      6,
			IndexTemplate: "tiaozhan.jpg",
			Steps: []StepSpec{
				{Template: "tiaozhan.jpg"},
				{Template: "tiaozhan2.jpg", WaitMs: 12000},
				{Template: "queding.jpg", Kind: "required_click", CornerTaps: 3},
				{Template: "shi.jpg"},
				{Template: "jifensaichahao.jpg", Kind: "required_click"},
			},
		},
		{
			Name:          "survival_challenge",
			Priority:      7,
			IndexTemplate: "juanzhou.jpg",
			Steps: steps("shengcunsaodang.jpg", "zhunbeijiuxu.png", "queding.jpg", "shengcunqueding.jpg",
				"shengcunqueding2.jpg", "queding.png", "queding.png", "queding.png", "tingzhisaodang.png",
				"chongzhi.png", "queding.jpg", "shengcunchahao2.png", "shengcunchahao2.png"),
		},
		{
			Name:          "mission_hall",
			Priority:      8,
			IndexTemplate: "lingqu.png",
			Steps:         steps("lingqu.png", "queding.jpg"),
		},
	}
}
