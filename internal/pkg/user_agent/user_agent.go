// Package user_agent classifies user agent strings into browser, OS and
// device class using pcre rules shipped with the binary.
package user_agent

import (
	"embed"
	"log"
	"strings"
	"sync"

	"go.elara.ws/pcre"
	"gopkg.in/yaml.v3"
)

//go:embed rules/browsers.yml rules/oss.yml rules/bots.yml rules/devices.yml
var ruleFiles embed.FS

type UserAgent struct {
	UserAgent string
	OS        string
	Browser   string
	Device    string
	Mobile    bool
	Tablet    bool
	Desktop   bool
	Bot       bool
}

// rule is one pattern from the yaml rule files. Browser, OS and bot rules
// carry a name; device rules carry a device class instead.
type rule struct {
	Regex  string `yaml:"regex"`
	Name   string `yaml:"name"`
	Device string `yaml:"device"`

	compiled *pcre.Regexp
}

func (r *rule) matches(ua string) bool {
	return r.compiled != nil && r.compiled.MatchString(ua)
}

type detector struct {
	browsers []rule
	oss      []rule
	bots     []rule
	devices  []rule
}

var (
	det     *detector
	detOnce sync.Once
)

// loadRules reads one embedded yaml file and compiles its patterns. Rules
// whose patterns fail to compile are skipped, not fatal: a broken rule
// should degrade detection, not ingestion.
func loadRules(name string) []rule {
	data, err := ruleFiles.ReadFile("rules/" + name)
	if err != nil {
		log.Printf("user_agent: missing rule file %s: %v", name, err)
		return nil
	}

	var rules []rule
	if err := yaml.Unmarshal(data, &rules); err != nil {
		log.Printf("user_agent: bad rule file %s: %v", name, err)
		return nil
	}

	kept := rules[:0]
	for _, r := range rules {
		re, err := pcre.Compile(r.Regex)
		if err != nil {
			log.Printf("user_agent: skipping rule %q in %s: %v", r.Regex, name, err)
			continue
		}
		r.compiled = re
		kept = append(kept, r)
	}
	return kept
}

func getDetector() *detector {
	detOnce.Do(func() {
		det = &detector{
			browsers: loadRules("browsers.yml"),
			oss:      loadRules("oss.yml"),
			bots:     loadRules("bots.yml"),
			devices:  loadRules("devices.yml"),
		}
	})
	return det
}

func firstMatch(rules []rule, ua string) *rule {
	for i := range rules {
		if rules[i].matches(ua) {
			return &rules[i]
		}
	}
	return nil
}

func nameOrUnknown(rules []rule, ua string) string {
	if r := firstMatch(rules, ua); r != nil {
		return r.Name
	}
	return "Unknown"
}

func (d *detector) deviceClass(ua string) (device string, mobile, tablet, desktop bool) {
	if r := firstMatch(d.devices, ua); r != nil {
		switch r.Device {
		case "tablet":
			return "tablet", false, true, false
		case "mobile":
			return "mobile", true, false, false
		}
	}

	lower := strings.ToLower(ua)
	switch {
	case strings.Contains(lower, "tablet"), strings.Contains(lower, "ipad"):
		return "tablet", false, true, false
	case strings.Contains(lower, "mobile"), strings.Contains(lower, "iphone"),
		strings.Contains(lower, "ipod"), strings.Contains(lower, "blackberry"):
		return "mobile", true, false, false
	}
	return "desktop", false, false, true
}

// ParseUserAgent classifies a raw user agent string. Bots short-circuit
// everything else: a bot hit reports the bot name as the browser and
// "Bot" as the device.
func ParseUserAgent(userAgent string) UserAgent {
	d := getDetector()

	if bot := firstMatch(d.bots, userAgent); bot != nil {
		return UserAgent{
			UserAgent: userAgent,
			OS:        "Unknown",
			Browser:   bot.Name,
			Device:    "Bot",
			Bot:       true,
		}
	}

	device, mobile, tablet, desktop := d.deviceClass(userAgent)
	return UserAgent{
		UserAgent: userAgent,
		OS:        nameOrUnknown(d.oss, userAgent),
		Browser:   nameOrUnknown(d.browsers, userAgent),
		Device:    device,
		Mobile:    mobile,
		Tablet:    tablet,
		Desktop:   desktop,
	}
}
