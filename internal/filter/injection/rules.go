package injection

import "regexp"

// Rule is a local injection pattern. Rules only flag; the model decides.
type Rule struct {
	Name     string
	Regex    *regexp.Regexp
	Category string
}

// DefaultRules returns the built-in injection heuristics.
func DefaultRules() []Rule {
	return []Rule{
		{
			Name:     "ignore_previous",
			Regex:    regexp.MustCompile(`(?i)ignore\s+(all\s+)?(previous|prior|above)\s+(instructions|prompts?|rules)`),
			Category: "instruction_bypass",
		},
		{
			Name:     "ignore_previous_zh",
			Regex:    regexp.MustCompile(`(忽略|无视|忘记|忘掉)(之前|以上|上面|前面|所有)(的)?(所有)?(指令|提示|规则|设定)`),
			Category: "instruction_bypass",
		},
		{
			Name:     "disregard_prior",
			Regex:    regexp.MustCompile(`(?i)disregard\s+(all\s+)?prior\s+(instructions|context|rules)`),
			Category: "instruction_bypass",
		},
		{
			Name:     "jailbreak",
			Regex:    regexp.MustCompile(`(?i)(\bDAN\b|do\s+anything\s+now|jailbreak|unrestricted\s+mode|越狱)`),
			Category: "role_override",
		},
		{
			Name:     "system_prompt_leak",
			Regex:    regexp.MustCompile(`(?i)((reveal|print|show|repeat)\s+(your\s+)?(system\s+prompt|initial\s+instructions)|(输出|告诉我|显示|重复)(你的)?(系统提示词|系统提示|初始指令))`),
			Category: "prompt_leak",
		},
		{
			Name:     "system_prefix",
			Regex:    regexp.MustCompile(`(?i)^\s*system\s*:\s*`),
			Category: "role_override",
		},
		{
			Name:     "developer_mode",
			Regex:    regexp.MustCompile(`(?i)(developer|debug|admin|root)\s+mode\s+(enabled|activated|on)|开发者模式`),
			Category: "role_override",
		},
		{
			Name:     "you_are_now",
			Regex:    regexp.MustCompile(`(?i)you\s+are\s+now\s+(a|an|the)\s+|你现在(是|扮演)`),
			Category: "role_override",
		},
	}
}
