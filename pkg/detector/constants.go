// Package detector turns successive resource snapshots into change events:
// addresses entering or leaving the blacklist, newly reported attacks, and
// live attack counts crossing the configured threshold.
package detector

import (
	"github.com/hervehildenbrand/ddos-radar/pkg/classifier"
	"github.com/hervehildenbrand/ddos-radar/pkg/models"
)

// AttackSeverity maps a canonical attack key to the severity of a new
// attack event. Reflected and amplified attacks rank highest.
var AttackSeverity = map[string]string{
	classifier.AttackSYNFlood:         models.SeverityHigh,
	classifier.AttackUDPFlood:         models.SeverityHigh,
	classifier.AttackHTTPFlood:        models.SeverityHigh,
	classifier.AttackICMPFlood:        models.SeverityMedium,
	classifier.AttackDNSAmplification: models.SeverityCritical,
	classifier.AttackDrDoSSYN:         models.SeverityCritical,
	classifier.AttackDrDoSUDP:         models.SeverityCritical,
	classifier.AttackDrDoSHTTP:        models.SeverityCritical,
	classifier.AttackDrDoSICMP:        models.SeverityHigh,
	classifier.AttackDrDoSDNS:         models.SeverityCritical,
	classifier.AttackGeneric:          models.SeverityMedium,
}

// SeverityFor returns the severity for a raw attack label.
func SeverityFor(rawLabel string) string {
	if s, ok := AttackSeverity[classifier.CanonicalizeAttackType(rawLabel).Key]; ok {
		return s
	}
	return models.SeverityMedium
}
