package partitioner

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/kairos-io/diskbuild/constants"
	"github.com/kairos-io/diskbuild/types/partitions"
)

var (
	logicalToken  = regexp.MustCompile(`^(.+)E:(.+)L$`)
	extendedToken = regexp.MustCompile(`^(.+)E$`)
)

// Classify derives the partition kind from an order token: "<ext>E:<n>L" is a
// logical partition, "<n>E" the extended container, anything else a primary.
// Only the shape is checked, the values never pick partition numbers.
func Classify(token string) (partitions.Classification, error) {
	token = strings.TrimSpace(token)
	switch {
	case token == "":
		return partitions.Classification{}, fmt.Errorf("empty order token")
	case strings.HasSuffix(token, "L"):
		m := logicalToken.FindStringSubmatch(token)
		if m == nil {
			return partitions.Classification{}, fmt.Errorf("order token %q is not shaped <ext>E:<logical>L, e.g. 2E:5L", token)
		}
		return partitions.Classification{Kind: partitions.Logical, Order: m[1], LogicalOrder: m[2]}, nil
	case strings.HasSuffix(token, "E"):
		m := extendedToken.FindStringSubmatch(token)
		if m == nil {
			return partitions.Classification{}, fmt.Errorf("order token %q is not shaped <ext>E, e.g. 3E", token)
		}
		return partitions.Classification{Kind: partitions.Extended, Order: m[1]}, nil
	}
	return partitions.Classification{Kind: partitions.Primary, Order: token}, nil
}

// ParseDeclaration parses "<order>, <size>, <type>[, <flag>]*".
func ParseDeclaration(name, value string) (partitions.PartitionSpec, error) {
	var fields []string
	for _, f := range strings.Split(value, ",") {
		if f = strings.TrimSpace(f); f != "" {
			fields = append(fields, f)
		}
	}
	if len(fields) < 3 {
		return partitions.PartitionSpec{}, &ConfigurationError{
			Partition: name,
			Reason:    fmt.Sprintf("declaration %q needs at least <order>, <size>, <type>", value),
		}
	}
	return partitions.PartitionSpec{
		Name:        name,
		OrderToken:  fields[0],
		SizeRequest: fields[1],
		TypeToken:   fields[2],
		Flags:       fields[3:],
	}, nil
}

// ParseDeclarations picks every part_<name> option and returns the
// declarations sorted in creation order.
func ParseDeclarations(options map[string]string) (partitions.PartitionSpecs, error) {
	specs := partitions.PartitionSpecs{}
	for k, v := range options {
		if !strings.HasPrefix(k, constants.PartPrefix) {
			continue
		}
		name := strings.TrimPrefix(k, constants.PartPrefix)
		if name == "" {
			return nil, &ConfigurationError{Reason: fmt.Sprintf("option %q has no partition name", k)}
		}
		spec, err := ParseDeclaration(name, v)
		if err != nil {
			return nil, err
		}
		specs = append(specs, spec)
	}
	specs.SortByOrder()
	return specs, nil
}
