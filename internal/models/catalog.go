package models

import (
	"sort"
	"strings"
)

type ServiceKind string

const (
	ServiceRegularCleaning    ServiceKind = "regular_cleaning"
	ServiceDeepCleaning       ServiceKind = "deep_cleaning"
	ServiceMoveInOut          ServiceKind = "move_in_out"
	ServiceJanitorialCleaning ServiceKind = "janitorial_cleaning"
)

const DefaultCurrency = "usd"

type ServicePackage struct {
	Kind        ServiceKind `json:"kind" yaml:"kind"`
	Name        string      `json:"name" yaml:"name"`
	Description string      `json:"description" yaml:"description"`
	HourlyRate  int64       `json:"hourly_rate" yaml:"hourly_rate"` // minor units
}

func DefaultServicePackages() []ServicePackage {
	return []ServicePackage{
		{Kind: ServiceRegularCleaning, Name: "Regular Cleaning", Description: "Standard cleaning service for homes and offices", HourlyRate: 4000},
		{Kind: ServiceDeepCleaning, Name: "Deep Cleaning", Description: "Thorough cleaning including hard-to-reach areas", HourlyRate: 4500},
		{Kind: ServiceMoveInOut, Name: "Move In/Out Cleaning", Description: "Complete cleaning for moving in or out", HourlyRate: 7000},
		{Kind: ServiceJanitorialCleaning, Name: "Janitorial Cleaning", Description: "Commercial janitorial services", HourlyRate: 7000},
	}
}

func DefaultServiceAreas() []string {
	return []string{"Tempe", "Chandler", "Gilbert", "Mesa", "Phoenix", "Glendale", "Scottsdale", "Avondale"}
}

// Catalog is the read-only price list and the set of areas we serve.
type Catalog struct {
	Currency string
	packages map[ServiceKind]ServicePackage
	areas    map[string]string
}

func NewCatalog(packages []ServicePackage, areas []string, currency string) *Catalog {
	c := &Catalog{
		Currency: strings.ToLower(currency),
		packages: make(map[ServiceKind]ServicePackage, len(packages)),
		areas:    make(map[string]string, len(areas)),
	}
	if c.Currency == "" {
		c.Currency = DefaultCurrency
	}
	for _, p := range packages {
		c.packages[p.Kind] = p
	}
	for _, a := range areas {
		c.areas[strings.ToLower(strings.TrimSpace(a))] = a
	}
	return c
}

func (c *Catalog) Package(kind ServiceKind) (ServicePackage, bool) {
	p, ok := c.packages[kind]
	return p, ok
}

// Area returns the canonical spelling of a served area.
func (c *Catalog) Area(name string) (string, bool) {
	a, ok := c.areas[strings.ToLower(strings.TrimSpace(name))]
	return a, ok
}

func (c *Catalog) Packages() []ServicePackage {
	out := make([]ServicePackage, 0, len(c.packages))
	for _, p := range c.packages {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Kind < out[j].Kind })
	return out
}

func (c *Catalog) Areas() []string {
	out := make([]string, 0, len(c.areas))
	for _, a := range c.areas {
		out = append(out, a)
	}
	sort.Strings(out)
	return out
}
