package model

import (
	"strings"
)

// State is a licensed jurisdiction
type State string

const (
	StateVA State = "VA"
	StateMD State = "MD"
	StateDC State = "DC"
)

// LicensedStates lists the only states the brokerage may transact in
var LicensedStates = []State{StateVA, StateMD, StateDC}

// IsLicensed reports whether s is one of VA, MD or DC
func (s State) IsLicensed() bool {
	for _, l := range LicensedStates {
		if s == l {
			return true
		}
	}
	return false
}

// Address is a sanitized property address. Build it with service.SelectAddress.
type Address struct {
	StreetNumber string `json:"streetNumber"`
	StreetName   string `json:"streetName"`
	City         string `json:"city,omitempty"`
	State        State  `json:"state"`
	Zip          string `json:"zip,omitempty"`
}

// GeocodeCandidate is a raw result from the geocoding collaborator
type GeocodeCandidate struct {
	StreetNumber string `json:"streetNumber"`
	StreetName   string `json:"streetName"`
	City         string `json:"city"`
	State        string `json:"state"`
	Zip          string `json:"zip"`
}

// Label joins the non-empty address parts, e.g. "123 Main St Ashburn VA"
func (a *Address) Label() string {
	if a == nil {
		return ""
	}
	parts := make([]string, 0, 4)
	for _, p := range []string{a.StreetNumber, a.StreetName, a.City, string(a.State)} {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(strings.Fields(strings.Join(parts, " ")), " ")
}

// Lock returns the text shown in the search box once an address is selected
func (a *Address) Lock() string {
	if a == nil {
		return ""
	}
	return a.StreetNumber + " " + a.StreetName + ", " + string(a.State)
}
