package classifier

import (
	"strings"

	"github.com/hervehildenbrand/ddos-radar/pkg/models"
)

// Canonical attack-family keys.
const (
	AttackSYNFlood         = "SYN_FLOOD"
	AttackUDPFlood         = "UDP_FLOOD"
	AttackHTTPFlood        = "HTTP_FLOOD"
	AttackICMPFlood        = "ICMP_FLOOD"
	AttackDNSAmplification = "DNS_AMPLIFICATION"
	AttackDrDoSSYN         = "DRDOS_SYN"
	AttackDrDoSUDP         = "DRDOS_UDP"
	AttackDrDoSHTTP        = "DRDOS_HTTP"
	AttackDrDoSICMP        = "DRDOS_ICMP"
	AttackDrDoSDNS         = "DRDOS_DNS"
	AttackGeneric          = "NETWORK_ATTACK"
)

// KnownAttacks maps canonical keys to their display text.
var KnownAttacks = map[string]models.AttackInfo{
	AttackSYNFlood: {
		Title:       "SYN Flood",
		Description: "Floods the target with TCP SYN packets and never completes the handshake, exhausting its connection table.",
	},
	AttackUDPFlood: {
		Title:       "UDP Flood",
		Description: "Sends large volumes of UDP datagrams to random ports, forcing the target to answer with ICMP unreachable replies.",
	},
	AttackHTTPFlood: {
		Title:       "HTTP Flood",
		Description: "Application-layer flood of seemingly valid HTTP requests that exhausts web server workers.",
	},
	AttackICMPFlood: {
		Title:       "ICMP Flood",
		Description: "Overwhelms the target with ICMP echo requests, saturating bandwidth in both directions.",
	},
	AttackDNSAmplification: {
		Title:       "DNS Amplification",
		Description: "Small spoofed DNS queries trigger large responses from open resolvers aimed at the target.",
	},
	AttackDrDoSSYN: {
		Title:       "Distributed Reflected SYN Flood",
		Description: "Spoofed SYN packets sent to many third-party servers, whose SYN-ACK replies converge on the target.",
	},
	AttackDrDoSUDP: {
		Title:       "Distributed Reflected UDP Flood",
		Description: "Spoofed UDP requests bounced off many reflectors so that their replies flood the target.",
	},
	AttackDrDoSHTTP: {
		Title:       "Distributed Reflected HTTP Flood",
		Description: "HTTP traffic relayed through many intermediaries so the flood reaches the target from a wide address range.",
	},
	AttackDrDoSICMP: {
		Title:       "Distributed Reflected ICMP Flood",
		Description: "Spoofed ICMP echo requests to many hosts whose replies are directed at the target (smurf style).",
	},
	AttackDrDoSDNS: {
		Title:       "Distributed Reflected DNS Amplification",
		Description: "Spoofed DNS queries across many open resolvers, amplified and reflected onto the target.",
	},
}

// GenericAttack is returned for missing or unrecognised labels.
var GenericAttack = models.AttackInfo{
	Key:         AttackGeneric,
	Title:       "Network Attack",
	Description: "Anomalous traffic flagged by the detection model. The attack family could not be determined from its label.",
}

// attackAliases maps normalised labels seen in the wild to canonical keys.
var attackAliases = map[string]string{
	"SYN":                                     AttackSYNFlood,
	"TCP_SYN_FLOOD":                           AttackSYNFlood,
	"UDP":                                     AttackUDPFlood,
	"UDP_LAG":                                 AttackUDPFlood,
	"HTTP":                                    AttackHTTPFlood,
	"HTTP_GET_FLOOD":                          AttackHTTPFlood,
	"ICMP":                                    AttackICMPFlood,
	"PING_FLOOD":                              AttackICMPFlood,
	"DNS":                                     AttackDNSAmplification,
	"DNS_AMP":                                 AttackDNSAmplification,
	"DNS_FLOOD":                               AttackDNSAmplification,
	"DRDOS_SYN_FLOOD":                         AttackDrDoSSYN,
	"DRDOS_UDP_FLOOD":                         AttackDrDoSUDP,
	"DRDOS_HTTP_FLOOD":                        AttackDrDoSHTTP,
	"DRDOS_ICMP_FLOOD":                        AttackDrDoSICMP,
	"DRDOS_DNS_AMPLIFICATION":                 AttackDrDoSDNS,
	"DISTRIBUTED_REFLECTED_SYN_FLOOD":         AttackDrDoSSYN,
	"DISTRIBUTED_REFLECTED_UDP_FLOOD":         AttackDrDoSUDP,
	"DISTRIBUTED_REFLECTED_HTTP_FLOOD":        AttackDrDoSHTTP,
	"DISTRIBUTED_REFLECTED_ICMP_FLOOD":        AttackDrDoSICMP,
	"DISTRIBUTED_REFLECTED_DNS_AMPLIFICATION": AttackDrDoSDNS,
}

// NormalizeLabel uppercases a label and collapses every run of
// non-alphanumeric characters into a single underscore.
func NormalizeLabel(raw string) string {
	var b strings.Builder
	b.Grow(len(raw))
	pendingSep := false
	for _, r := range strings.ToUpper(raw) {
		isAlnum := (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')
		if !isAlnum {
			pendingSep = b.Len() > 0
			continue
		}
		if pendingSep {
			b.WriteByte('_')
			pendingSep = false
		}
		b.WriteRune(r)
	}
	return b.String()
}

// CanonicalizeAttackType resolves a free-text attack label to a known attack
// family. It never fails: unknown or empty labels resolve to GenericAttack.
func CanonicalizeAttackType(raw string) models.AttackInfo {
	key := NormalizeLabel(raw)
	if key == "" {
		return GenericAttack
	}
	if info, ok := lookupAttack(key); ok {
		return info
	}
	// "SYN Flood Attack" and friends.
	if trimmed := strings.TrimSuffix(key, "_ATTACK"); trimmed != key {
		if info, ok := lookupAttack(trimmed); ok {
			return info
		}
	}
	return GenericAttack
}

func lookupAttack(key string) (models.AttackInfo, bool) {
	if alias, ok := attackAliases[key]; ok {
		key = alias
	}
	info, ok := KnownAttacks[key]
	if !ok {
		return models.AttackInfo{}, false
	}
	info.Key = key
	return info, true
}

// IsKnownAttack reports whether a label resolves to a specific attack family.
func IsKnownAttack(raw string) bool {
	return CanonicalizeAttackType(raw).Key != AttackGeneric
}
