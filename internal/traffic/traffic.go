// Package traffic describes the generator configurations a benchmark sweeps over.
package traffic

import (
	"fmt"
	"strconv"
	"strings"
)

// PacketSize is a frame size in bytes or Random.
type PacketSize string

// Random asks the generator for randomly sized packets.
const Random PacketSize = "random"

// DefaultSizes is the packet-size sweep used when none is configured.
func DefaultSizes() []PacketSize {
	return []PacketSize{"64", "128", "256", "512", "1024", "1500", Random}
}

// ParseSize accepts a positive integer, "random" or its short form "r".
func ParseSize(s string) (PacketSize, error) {
	s = strings.TrimSpace(strings.ToLower(s))
	switch s {
	case "random", "r":
		return Random, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return "", fmt.Errorf("invalid packet size %q", s)
	}
	return PacketSize(strconv.Itoa(n)), nil
}

// ParseSizes parses a list of sizes, keeping order.
func ParseSizes(in []string) ([]PacketSize, error) {
	out := make([]PacketSize, 0, len(in))
	for _, s := range in {
		p, err := ParseSize(s)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

// Kind identifies one of the four fixed conditions run per packet size.
type Kind int

const (
	DefaultNoResponse Kind = iota
	NoCongestionNoResponse
	DefaultResponse
	NoCongestionResponse
)

// Kinds lists the conditions in the order they are run.
var Kinds = []Kind{DefaultNoResponse, NoCongestionNoResponse, DefaultResponse, NoCongestionResponse}

func (k Kind) String() string {
	switch k {
	case DefaultNoResponse:
		return "default, no response"
	case NoCongestionNoResponse:
		return "no congestion, no response"
	case DefaultResponse:
		return "default, response"
	case NoCongestionResponse:
		return "no congestion, response"
	}
	return "unknown"
}

// Slug is a filesystem friendly name for the condition.
func (k Kind) Slug() string {
	switch k {
	case DefaultNoResponse:
		return "default"
	case NoCongestionNoResponse:
		return "nocong"
	case DefaultResponse:
		return "default-resp"
	case NoCongestionResponse:
		return "nocong-resp"
	}
	return "unknown"
}

// Congested reports whether the condition uses the high transmit rate.
func (k Kind) Congested() bool {
	return k == DefaultNoResponse || k == DefaultResponse
}

// Respond reports whether the DUT is asked to answer received packets.
func (k Kind) Respond() bool {
	return k == DefaultResponse || k == NoCongestionResponse
}

// Condition is one generator configuration against one target.
type Condition struct {
	Kind     Kind
	Rate     int
	Size     PacketSize
	Respond  bool
	TargetID int
}

// NewCondition builds the condition of kind k, picking the rate from high or low.
func NewCondition(k Kind, size PacketSize, targetID, high, low int) Condition {
	rate := low
	if k.Congested() {
		rate = high
	}
	return Condition{Kind: k, Rate: rate, Size: size, Respond: k.Respond(), TargetID: targetID}
}

// RespondFlag is the 0/1 form used on remote command lines.
func (c Condition) RespondFlag() int {
	if c.Respond {
		return 1
	}
	return 0
}

func (c Condition) String() string {
	return fmt.Sprintf("%s (size=%s rate=%d target=%d)", c.Kind, c.Size, c.Rate, c.TargetID)
}
