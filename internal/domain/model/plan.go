package model

import (
	"fmt"
	"time"

	"telegram-vpn-provisioning/internal/domain"
)

// PlanDefinition is a static catalog entry. Days and Hours add up to an exact offset.
type PlanDefinition struct {
	Key   string
	Name  string
	Days  int
	Hours int
}

func (p PlanDefinition) Duration() time.Duration {
	return time.Duration(p.Days)*24*time.Hour + time.Duration(p.Hours)*time.Hour
}

// ComputeExpiry returns now + duration(plan), normalized to UTC.
func ComputeExpiry(p PlanDefinition, now time.Time) time.Time {
	return now.Add(p.Duration()).UTC()
}

// PlanCatalog is the ordered, immutable set of purchasable plans.
type PlanCatalog struct {
	plans  []PlanDefinition
	byName map[string]int
	byKey  map[string]int
}

// NewPlanCatalog validates plans: unique names and keys, positive durations.
func NewPlanCatalog(plans ...PlanDefinition) (*PlanCatalog, error) {
	if len(plans) == 0 {
		return nil, fmt.Errorf("%w: empty plan catalog", domain.ErrInvalidArgument)
	}
	c := &PlanCatalog{
		plans:  make([]PlanDefinition, 0, len(plans)),
		byName: make(map[string]int, len(plans)),
		byKey:  make(map[string]int, len(plans)),
	}
	for _, p := range plans {
		if p.Name == "" || p.Key == "" || p.Days < 0 || p.Hours < 0 || p.Duration() <= 0 {
			return nil, fmt.Errorf("%w: plan %q", domain.ErrInvalidArgument, p.Name)
		}
		if _, dup := c.byName[p.Name]; dup {
			return nil, fmt.Errorf("%w: duplicate plan name %q", domain.ErrInvalidArgument, p.Name)
		}
		if _, dup := c.byKey[p.Key]; dup {
			return nil, fmt.Errorf("%w: duplicate plan key %q", domain.ErrInvalidArgument, p.Key)
		}
		c.byName[p.Name] = len(c.plans)
		c.byKey[p.Key] = len(c.plans)
		c.plans = append(c.plans, p)
	}
	return c, nil
}

func (c *PlanCatalog) List() []PlanDefinition {
	out := make([]PlanDefinition, len(c.plans))
	copy(out, c.plans)
	return out
}

func (c *PlanCatalog) ByName(name string) (PlanDefinition, error) {
	i, ok := c.byName[name]
	if !ok {
		return PlanDefinition{}, fmt.Errorf("%w: %q", domain.ErrInvalidPlan, name)
	}
	return c.plans[i], nil
}

func (c *PlanCatalog) ByKey(key string) (PlanDefinition, error) {
	i, ok := c.byKey[key]
	if !ok {
		return PlanDefinition{}, fmt.Errorf("%w: key %q", domain.ErrInvalidPlan, key)
	}
	return c.plans[i], nil
}

// ComputeExpiry looks the plan up by name. Unknown plans are an error, never a zero offset.
func (c *PlanCatalog) ComputeExpiry(plan string, now time.Time) (time.Time, error) {
	p, err := c.ByName(plan)
	if err != nil {
		return time.Time{}, err
	}
	return ComputeExpiry(p, now), nil
}
