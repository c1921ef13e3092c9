package history

import (
	"fmt"
	"strings"
)

// Family is a metric family. Each family fixes the payload kind of its
// records and therefore the combine rule used when compressing them.
type Family int

const (
	// FamilyUptime records when an entity was listed as running.
	FamilyUptime Family = iota

	// FamilyReadHistory records bytes read per interval.
	FamilyReadHistory

	// FamilyWriteHistory records bytes written per interval.
	FamilyWriteHistory

	// FamilyWeights records path selection weights.
	FamilyWeights

	// FamilyClients records directory request responses.
	FamilyClients
)

// NetworkEntity identifies the network-wide aggregate record of a
// family. Relay uptime is normalized against the network uptime record.
const NetworkEntity = "network"

// Weight vector components, in payload order.
const (
	WeightAdvertisedBandwidth = iota
	WeightConsensusWeight
	WeightGuardProbability
	WeightMiddleProbability
	WeightExitProbability

	WeightComponents
)

// WeightNames names the weight vector components, in payload order.
var WeightNames = [WeightComponents]string{
	"advertised_bandwidth_fraction",
	"consensus_weight_fraction",
	"guard_probability",
	"middle_probability",
	"exit_probability",
}

// String returns the string representation of the family.
func (f Family) String() string {
	switch f {
	case FamilyUptime:
		return "uptime"
	case FamilyReadHistory:
		return "read"
	case FamilyWriteHistory:
		return "write"
	case FamilyWeights:
		return "weights"
	case FamilyClients:
		return "clients"
	default:
		return fmt.Sprintf("unknown(%d)", int(f))
	}
}

// Kind returns the payload kind carried by records of this family.
func (f Family) Kind() Kind {
	switch f {
	case FamilyWeights:
		return KindVector
	case FamilyClients:
		return KindCounts
	default:
		return KindCounter
	}
}

// Rule returns the combine rule for this family's payloads.
func (f Family) Rule() Rule {
	return RuleFor(f.Kind())
}

// Valid returns true for the known families.
func (f Family) Valid() bool {
	return f >= FamilyUptime && f <= FamilyClients
}

// ParseFamily parses a family name.
func ParseFamily(s string) (Family, error) {
	switch strings.ToLower(s) {
	case "uptime":
		return FamilyUptime, nil
	case "read":
		return FamilyReadHistory, nil
	case "write":
		return FamilyWriteHistory, nil
	case "weights":
		return FamilyWeights, nil
	case "clients":
		return FamilyClients, nil
	default:
		return FamilyUptime, fmt.Errorf("unknown family: %s", s)
	}
}

// AllFamilies returns all families in order.
func AllFamilies() []Family {
	return []Family{FamilyUptime, FamilyReadHistory, FamilyWriteHistory, FamilyWeights, FamilyClients}
}
