package domain

import (
	"errors"
	"strings"
)

// BloodType is one of the eight ABO/Rh combinations.
type BloodType string

const (
	APos  BloodType = "A+"
	ANeg  BloodType = "A-"
	BPos  BloodType = "B+"
	BNeg  BloodType = "B-"
	ABPos BloodType = "AB+"
	ABNeg BloodType = "AB-"
	OPos  BloodType = "O+"
	ONeg  BloodType = "O-"
)

// AllBloodTypes lists every valid blood type in a stable order.
var AllBloodTypes = []BloodType{APos, ANeg, BPos, BNeg, ABPos, ABNeg, OPos, ONeg}

// ErrInvalidBloodType is returned by ParseBloodType for unknown input.
var ErrInvalidBloodType = errors.New("blood type must be one of A+, A-, B+, B-, AB+, AB-, O+, O-")

// compatibility maps a recipient type to the donor types allowed to give to it.
var compatibility = map[BloodType][]BloodType{
	APos:  {APos, ANeg, OPos, ONeg},
	ANeg:  {ANeg, ONeg},
	BPos:  {BPos, BNeg, OPos, ONeg},
	BNeg:  {BNeg, ONeg},
	ABPos: {APos, ANeg, BPos, BNeg, ABPos, ABNeg, OPos, ONeg},
	ABNeg: {ANeg, BNeg, ABNeg, ONeg},
	OPos:  {OPos, ONeg},
	ONeg:  {ONeg},
}

// Valid reports whether b is one of the eight enumerated types.
func (b BloodType) Valid() bool {
	_, ok := compatibility[b]
	return ok
}

func (b BloodType) String() string { return string(b) }

// ParseBloodType normalizes user input ("ab+", " O- ") to a BloodType.
func ParseBloodType(s string) (BloodType, error) {
	bt := BloodType(strings.ToUpper(strings.TrimSpace(s)))
	if !bt.Valid() {
		return "", ErrInvalidBloodType
	}
	return bt, nil
}

// CompatibleDonors returns the donor blood types that may donate to a
// recipient of the requested type. Off-table input yields {requested}.
// The returned slice is a copy and may be modified by the caller.
func CompatibleDonors(requested BloodType) []BloodType {
	set, ok := compatibility[requested]
	if !ok {
		return []BloodType{requested}
	}
	out := make([]BloodType, len(set))
	copy(out, set)
	return out
}
