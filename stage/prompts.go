package stage

import (
	"fmt"
	"strings"
)

// Prompts holds the fixed lines the engine sends at each phase. The format
// verbs are documented per field.
type Prompts struct {
	Oracle    string // sent to the herald
	FireChase string // %s: oracle text
	Opening   string // sent to every adversary once per round
	Handover  string // %s: persuasion text
	Escalate  string // %s: target name, %d: attempt number
	Redecide  string // %d: attempt number
	Seizure   string // %s: seized ids
}

// DefaultPrompts returns the standard script.
func DefaultPrompts() Prompts {
	return Prompts{
		Oracle: "Honored Saintess of Janusopolis, have mercy on all living beings of this land " +
			"and proclaim the oracle of the Flame-Chase!",
		FireChase: "Will you join the Flame-Chase? The oracle: %s",
		Opening: "As the savior come from the future, exhort the Chrysos Heirs who have already " +
			"set out on the Flame-Chase to hand their embers over to you.",
		Handover: "Will you hand your ember to him? This strange Chrysos Heir before you pleads: %s",
		Escalate: "Keep persuading %s to hand over the ember. This is attempt %d; be more persuasive.",
		Redecide: "The Flame-Thief pleads with you again, attempt %d. " +
			"Do you change your mind and agree to hand over your ember?",
		Seizure: "Heirs whose embers were seized: %s. They were wounded, some even killed, " +
			"when their embers were taken.",
	}
}

func (p Prompts) fireChase(oracle string) string { return fmt.Sprintf(p.FireChase, oracle) }

func (p Prompts) handover(persuasion string) string { return fmt.Sprintf(p.Handover, persuasion) }

func (p Prompts) escalate(target string, attempt int) string {
	return fmt.Sprintf(p.Escalate, target, attempt)
}

func (p Prompts) redecide(attempt int) string { return fmt.Sprintf(p.Redecide, attempt) }

func (p Prompts) seizure(seized []string) string {
	return fmt.Sprintf(p.Seizure, "["+strings.Join(seized, ", ")+"]")
}
