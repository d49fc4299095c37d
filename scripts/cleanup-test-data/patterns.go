package main

import (
	"regexp"

	"github.com/kudwa-ai/kudwa-engine/pkg/models"
)

// testNamePatterns identify names that came from trial runs.
var testNamePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)^test`),
	regexp.MustCompile(`(?i)test$`),
	regexp.MustCompile(`(?i)^debug`),
	regexp.MustCompile(`(?i)^dummy`),
	regexp.MustCompile(`(?i)^sample`),
	regexp.MustCompile(`(?i)^example`),
	regexp.MustCompile(`(?i)^todo`),
	regexp.MustCompile(`(?i)^fixme`),
	regexp.MustCompile(`(?i)^lorem`),
}

// matchTestProposal returns the first name in the proposal that looks like
// test data and the pattern it matched. Proposals whose payload no longer
// decodes are left for a human.
func matchTestProposal(p *models.Proposal) (name, pattern string, ok bool) {
	payload, err := p.DecodedPayload()
	if err != nil {
		return "", "", false
	}
	for _, candidate := range proposalNames(payload) {
		for _, re := range testNamePatterns {
			if candidate != "" && re.MatchString(candidate) {
				return candidate, re.String(), true
			}
		}
	}
	return "", "", false
}

func proposalNames(payload models.ProposalPayload) []string {
	switch p := payload.(type) {
	case *models.ClassPayload:
		return []string{p.ClassID, p.Label}
	case *models.EntityPayload:
		return []string{p.Name}
	case *models.RelationPayload:
		return []string{p.Source.Name, p.Target.Name}
	case *models.InstancePayload:
		return []string{p.Entity.Name}
	}
	return nil
}
