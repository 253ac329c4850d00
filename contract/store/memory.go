// Package store provides contract.Store implementations.
package store

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/warp/contract-engine/contract"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type tables struct {
	contracts        map[contract.ContractID]contract.Contract
	details          map[contract.DetailsID]contract.ContractDetails
	planDetails      map[contract.PlanDetailsID]contract.ContributionPlanDetails
	policies         map[contract.PolicyID]contract.Policy
	contractPolicies []contract.ContractPolicy
	insureePolicies  []contract.InsureePolicy
	waitingPeriods   map[string]contract.InsureeWaitingPeriod
	payments         map[contract.PaymentID]contract.Payment
	paymentDetails   []contract.PaymentDetail
	contributions    map[contract.ContributionID]contract.Contribution

	holders   map[contract.PolicyHolderID]contract.PolicyHolder
	locations map[contract.LocationID]contract.Location
	insurees  map[contract.InsureeID]contract.Insuree
	products  map[contract.ProductID]contract.Product
	plans     map[contract.PlanID]contract.ContributionPlan
	bundles   map[contract.BundleID]contract.ContributionPlanBundle
	bundleMap map[contract.BundleID][]contract.PlanID
	roster    map[contract.PolicyHolderID][]contract.PolicyHolderInsuree
}

func newTables() *tables {
	return &tables{
		contracts:      make(map[contract.ContractID]contract.Contract),
		details:        make(map[contract.DetailsID]contract.ContractDetails),
		planDetails:    make(map[contract.PlanDetailsID]contract.ContributionPlanDetails),
		policies:       make(map[contract.PolicyID]contract.Policy),
		waitingPeriods: make(map[string]contract.InsureeWaitingPeriod),
		payments:       make(map[contract.PaymentID]contract.Payment),
		contributions:  make(map[contract.ContributionID]contract.Contribution),
		holders:        make(map[contract.PolicyHolderID]contract.PolicyHolder),
		locations:      make(map[contract.LocationID]contract.Location),
		insurees:       make(map[contract.InsureeID]contract.Insuree),
		products:       make(map[contract.ProductID]contract.Product),
		plans:          make(map[contract.PlanID]contract.ContributionPlan),
		bundles:        make(map[contract.BundleID]contract.ContributionPlanBundle),
		bundleMap:      make(map[contract.BundleID][]contract.PlanID),
		roster:         make(map[contract.PolicyHolderID][]contract.PolicyHolderInsuree),
	}
}

func (t *tables) clone() *tables {
	c := newTables()
	for k, v := range t.contracts {
		c.contracts[k] = v
	}
	for k, v := range t.details {
		c.details[k] = v
	}
	for k, v := range t.planDetails {
		c.planDetails[k] = v
	}
	for k, v := range t.policies {
		c.policies[k] = v
	}
	c.contractPolicies = append([]contract.ContractPolicy{}, t.contractPolicies...)
	c.insureePolicies = append([]contract.InsureePolicy{}, t.insureePolicies...)
	for k, v := range t.waitingPeriods {
		c.waitingPeriods[k] = v
	}
	for k, v := range t.payments {
		c.payments[k] = v
	}
	c.paymentDetails = append([]contract.PaymentDetail{}, t.paymentDetails...)
	for k, v := range t.contributions {
		c.contributions[k] = v
	}
	for k, v := range t.holders {
		c.holders[k] = v
	}
	for k, v := range t.locations {
		c.locations[k] = v
	}
	for k, v := range t.insurees {
		c.insurees[k] = v
	}
	for k, v := range t.products {
		c.products[k] = v
	}
	for k, v := range t.plans {
		c.plans[k] = v
	}
	for k, v := range t.bundles {
		c.bundles[k] = v
	}
	for k, v := range t.bundleMap {
		c.bundleMap[k] = append([]contract.PlanID{}, v...)
	}
	for k, v := range t.roster {
		c.roster[k] = append([]contract.PolicyHolderInsuree{}, v...)
	}
	return c
}

// Memory is an in-memory contract.Store. Entities are stored by value so
// callers never alias internal state.
type Memory struct {
	mu   sync.RWMutex
	data *tables
	seq  int
}

func NewMemory() *Memory {
	return &Memory{data: newTables()}
}

func (m *Memory) nextID(prefix string) string {
	m.seq++
	return fmt.Sprintf("%s-%06d", prefix, m.seq)
}

// WithTx simulates a transaction with snapshot + rollback on error.
func (m *Memory) WithTx(_ context.Context, fn func(contract.Store) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	snapshot := m.data.clone()
	if err := fn(&txMemoryView{parent: m}); err != nil {
		m.data = snapshot
		return err
	}
	return nil
}

// =============================================================================
// SEED HELPERS - reference data setup for tests and dev fixtures
// =============================================================================

func (m *Memory) AddPolicyHolder(h contract.PolicyHolder) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data.holders[h.ID] = h
}

func (m *Memory) AddLocation(l contract.Location) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data.locations[l.ID] = l
}

func (m *Memory) AddInsuree(i contract.Insuree) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data.insurees[i.ID] = i
}

func (m *Memory) AddProduct(p contract.Product) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data.products[p.ID] = p
}

func (m *Memory) AddPlan(p contract.ContributionPlan) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data.plans[p.ID] = p
}

func (m *Memory) AddBundle(b contract.ContributionPlanBundle, plans ...contract.PlanID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data.bundles[b.ID] = b
	m.data.bundleMap[b.ID] = append([]contract.PlanID{}, plans...)
}

func (m *Memory) AddPolicyHolderInsuree(phi contract.PolicyHolderInsuree) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data.roster[phi.PolicyHolder] = append(m.data.roster[phi.PolicyHolder], phi)
}

func (m *Memory) AddWaitingPeriod(wp contract.InsureeWaitingPeriod) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if wp.ID == "" {
		wp.ID = m.nextID("WP")
	}
	m.data.waitingPeriods[wp.ID] = wp
}

// =============================================================================
// CONTRACT STORE
// =============================================================================

func (m *Memory) CreateContract(_ context.Context, c *contract.Contract) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.createContractLocked(c)
}

func (m *Memory) createContractLocked(c *contract.Contract) error {
	if c.ID == "" {
		c.ID = contract.ContractID(m.nextID("C"))
	}
	m.data.contracts[c.ID] = *c
	return nil
}

func (m *Memory) UpdateContract(_ context.Context, c *contract.Contract) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.updateContractLocked(c)
}

func (m *Memory) updateContractLocked(c *contract.Contract) error {
	if _, ok := m.data.contracts[c.ID]; !ok {
		return contract.ErrContractNotFound
	}
	m.data.contracts[c.ID] = *c
	return nil
}

func (m *Memory) GetContract(_ context.Context, id contract.ContractID) (*contract.Contract, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getContractLocked(id)
}

func (m *Memory) getContractLocked(id contract.ContractID) (*contract.Contract, error) {
	c, ok := m.data.contracts[id]
	if !ok || c.IsDeleted {
		return nil, nil
	}
	return &c, nil
}

func (m *Memory) ContractByCodeAndAmendment(_ context.Context, code string, amendment int) (*contract.Contract, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.contractByCodeAndAmendmentLocked(code, amendment)
}

func (m *Memory) contractByCodeAndAmendmentLocked(code string, amendment int) (*contract.Contract, error) {
	for _, c := range m.data.contracts {
		if !c.IsDeleted && c.Code == code && c.Amendment == amendment {
			out := c
			return &out, nil
		}
	}
	return nil, nil
}

func (m *Memory) ContractsByPolicyHolder(_ context.Context, id contract.PolicyHolderID) ([]*contract.Contract, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.contractsByPolicyHolderLocked(id)
}

func (m *Memory) contractsByPolicyHolderLocked(id contract.PolicyHolderID) ([]*contract.Contract, error) {
	var out []*contract.Contract
	for _, c := range m.data.contracts {
		if !c.IsDeleted && c.PolicyHolderID == id {
			cc := c
			out = append(out, &cc)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DateCreated.After(out[j].DateCreated) })
	return out, nil
}

func (m *Memory) CodesForMonth(_ context.Context, prefix string, year int, month time.Month) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.codesForMonthLocked(prefix, year, month)
}

func (m *Memory) codesForMonthLocked(prefix string, year int, month time.Month) ([]string, error) {
	var out []string
	for _, c := range m.data.contracts {
		if c.IsDeleted || !strings.HasPrefix(c.Code, prefix) {
			continue
		}
		if c.DateCreated.Year() == year && c.DateCreated.Month() == month {
			out = append(out, c.Code)
		}
	}
	return out, nil
}

func (m *Memory) CodeExists(_ context.Context, code string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.codeExistsLocked(code)
}

func (m *Memory) codeExistsLocked(code string) (bool, error) {
	for _, c := range m.data.contracts {
		if !c.IsDeleted && c.Code == code {
			return true, nil
		}
	}
	return false, nil
}

func (m *Memory) SoftDeleteContract(_ context.Context, id contract.ContractID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.softDeleteContractLocked(id)
}

func (m *Memory) softDeleteContractLocked(id contract.ContractID) error {
	c, ok := m.data.contracts[id]
	if !ok {
		return contract.ErrContractNotFound
	}
	c.IsDeleted = true
	m.data.contracts[id] = c
	for did, d := range m.data.details {
		if d.ContractID == id {
			d.IsDeleted = true
			m.data.details[did] = d
			for pid, p := range m.data.planDetails {
				if p.DetailsID == did {
					p.IsDeleted = true
					m.data.planDetails[pid] = p
				}
			}
		}
	}
	return nil
}

func (m *Memory) ContractsToTerminate(_ context.Context, now time.Time) ([]*contract.Contract, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.contractsToTerminateLocked(now)
}

func (m *Memory) contractsToTerminateLocked(now time.Time) ([]*contract.Contract, error) {
	var out []*contract.Contract
	for _, c := range m.data.contracts {
		if !c.IsDeleted && c.State == contract.StateEffective && c.DateValidTo.Before(now) {
			cc := c
			out = append(out, &cc)
		}
	}
	return out, nil
}

// =============================================================================
// DETAILS STORE
// =============================================================================

func (m *Memory) CreateDetails(_ context.Context, d *contract.ContractDetails) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.createDetailsLocked(d)
}

func (m *Memory) createDetailsLocked(d *contract.ContractDetails) error {
	if d.ID == "" {
		d.ID = contract.DetailsID(m.nextID("CD"))
	}
	m.data.details[d.ID] = *d
	return nil
}

func (m *Memory) UpdateDetails(_ context.Context, d *contract.ContractDetails) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.updateDetailsLocked(d)
}

func (m *Memory) updateDetailsLocked(d *contract.ContractDetails) error {
	if _, ok := m.data.details[d.ID]; !ok {
		return contract.ErrNotFound
	}
	m.data.details[d.ID] = *d
	return nil
}

func (m *Memory) GetDetails(_ context.Context, id contract.DetailsID) (*contract.ContractDetails, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getDetailsLocked(id)
}

func (m *Memory) getDetailsLocked(id contract.DetailsID) (*contract.ContractDetails, error) {
	d, ok := m.data.details[id]
	if !ok || d.IsDeleted {
		return nil, nil
	}
	return &d, nil
}

func (m *Memory) DetailsByContract(_ context.Context, id contract.ContractID, confirmedOnly bool) ([]*contract.ContractDetails, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.detailsByContractLocked(id, confirmedOnly)
}

func (m *Memory) detailsByContractLocked(id contract.ContractID, confirmedOnly bool) ([]*contract.ContractDetails, error) {
	var out []*contract.ContractDetails
	for _, d := range m.data.details {
		if d.IsDeleted || d.ContractID != id {
			continue
		}
		if confirmedOnly && !d.IsConfirmed {
			continue
		}
		dd := d
		out = append(out, &dd)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) DetailsForInsuree(_ context.Context, insuree contract.InsureeID, holder contract.PolicyHolderID, bundle contract.BundleID) ([]*contract.ContractDetails, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.detailsForInsureeLocked(insuree, holder, bundle)
}

func (m *Memory) detailsForInsureeLocked(insuree contract.InsureeID, holder contract.PolicyHolderID, bundle contract.BundleID) ([]*contract.ContractDetails, error) {
	var out []*contract.ContractDetails
	for _, d := range m.data.details {
		if d.IsDeleted || d.InsureeID != insuree || d.BundleID != bundle {
			continue
		}
		c, ok := m.data.contracts[d.ContractID]
		if !ok || c.IsDeleted || c.PolicyHolderID != holder {
			continue
		}
		dd := d
		out = append(out, &dd)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DateCreated.After(out[j].DateCreated) })
	return out, nil
}

// =============================================================================
// PLAN DETAILS STORE
// =============================================================================

func (m *Memory) CreatePlanDetails(_ context.Context, p *contract.ContributionPlanDetails) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.createPlanDetailsLocked(p)
}

func (m *Memory) createPlanDetailsLocked(p *contract.ContributionPlanDetails) error {
	if p.ID == "" {
		p.ID = contract.PlanDetailsID(m.nextID("CCPD"))
	}
	m.data.planDetails[p.ID] = *p
	return nil
}

func (m *Memory) UpdatePlanDetails(_ context.Context, p *contract.ContributionPlanDetails) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.updatePlanDetailsLocked(p)
}

func (m *Memory) updatePlanDetailsLocked(p *contract.ContributionPlanDetails) error {
	if _, ok := m.data.planDetails[p.ID]; !ok {
		return contract.ErrNotFound
	}
	m.data.planDetails[p.ID] = *p
	return nil
}

func (m *Memory) GetPlanDetails(_ context.Context, id contract.PlanDetailsID) (*contract.ContributionPlanDetails, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getPlanDetailsLocked(id)
}

func (m *Memory) getPlanDetailsLocked(id contract.PlanDetailsID) (*contract.ContributionPlanDetails, error) {
	p, ok := m.data.planDetails[id]
	if !ok || p.IsDeleted {
		return nil, nil
	}
	return &p, nil
}

func (m *Memory) PlanDetailsByContract(_ context.Context, id contract.ContractID) ([]*contract.ContributionPlanDetails, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.planDetailsByContractLocked(id)
}

func (m *Memory) planDetailsByContractLocked(id contract.ContractID) ([]*contract.ContributionPlanDetails, error) {
	var out []*contract.ContributionPlanDetails
	for _, p := range m.data.planDetails {
		if p.IsDeleted {
			continue
		}
		d, ok := m.data.details[p.DetailsID]
		if !ok || d.ContractID != id {
			continue
		}
		pp := p
		out = append(out, &pp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) PlanDetailsByDetails(_ context.Context, id contract.DetailsID) ([]*contract.ContributionPlanDetails, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.planDetailsByDetailsLocked(id)
}

func (m *Memory) planDetailsByDetailsLocked(id contract.DetailsID) ([]*contract.ContributionPlanDetails, error) {
	var out []*contract.ContributionPlanDetails
	for _, p := range m.data.planDetails {
		if !p.IsDeleted && p.DetailsID == id {
			pp := p
			out = append(out, &pp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) PlanDetailsByContribution(_ context.Context, id contract.ContributionID) (*contract.ContributionPlanDetails, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.planDetailsByContributionLocked(id)
}

func (m *Memory) planDetailsByContributionLocked(id contract.ContributionID) (*contract.ContributionPlanDetails, error) {
	for _, p := range m.data.planDetails {
		if !p.IsDeleted && p.ContributionID == id {
			pp := p
			return &pp, nil
		}
	}
	return nil, nil
}

// =============================================================================
// POLICY STORE
// =============================================================================

func (m *Memory) CreatePolicy(_ context.Context, p *contract.Policy) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.createPolicyLocked(p)
}

func (m *Memory) createPolicyLocked(p *contract.Policy) error {
	if p.ID == "" {
		p.ID = contract.PolicyID(m.nextID("POL"))
	}
	m.data.policies[p.ID] = *p
	return nil
}

func (m *Memory) UpdatePolicy(_ context.Context, p *contract.Policy) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.updatePolicyLocked(p)
}

func (m *Memory) updatePolicyLocked(p *contract.Policy) error {
	if _, ok := m.data.policies[p.ID]; !ok {
		return contract.ErrNotFound
	}
	m.data.policies[p.ID] = *p
	return nil
}

func (m *Memory) GetPolicy(_ context.Context, id contract.PolicyID) (*contract.Policy, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getPolicyLocked(id)
}

func (m *Memory) getPolicyLocked(id contract.PolicyID) (*contract.Policy, error) {
	p, ok := m.data.policies[id]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (m *Memory) FamilyHasPolicy(_ context.Context, id contract.FamilyID) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.familyHasPolicyLocked(id)
}

func (m *Memory) familyHasPolicyLocked(id contract.FamilyID) (bool, error) {
	for _, p := range m.data.policies {
		if p.FamilyID == id {
			return true, nil
		}
	}
	return false, nil
}

func (m *Memory) PoliciesForFamilyProduct(_ context.Context, family contract.FamilyID, product contract.ProductID, from, to time.Time) ([]*contract.Policy, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.policiesForFamilyProductLocked(family, product, from, to)
}

func (m *Memory) policiesForFamilyProductLocked(family contract.FamilyID, product contract.ProductID, from, to time.Time) ([]*contract.Policy, error) {
	var out []*contract.Policy
	for _, p := range m.data.policies {
		if p.FamilyID != family || p.ProductID != product {
			continue
		}
		if p.StartDate.After(to) || p.ExpiryDate.Before(from) {
			continue
		}
		pp := p
		out = append(out, &pp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartDate.Before(out[j].StartDate) })
	return out, nil
}

func (m *Memory) CreateContractPolicy(_ context.Context, cp *contract.ContractPolicy) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.createContractPolicyLocked(cp)
}

func (m *Memory) createContractPolicyLocked(cp *contract.ContractPolicy) error {
	if cp.ID == "" {
		cp.ID = m.nextID("CP")
	}
	m.data.contractPolicies = append(m.data.contractPolicies, *cp)
	return nil
}

func (m *Memory) CreateInsureePolicy(_ context.Context, ip *contract.InsureePolicy) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.createInsureePolicyLocked(ip)
}

func (m *Memory) createInsureePolicyLocked(ip *contract.InsureePolicy) error {
	if ip.ID == "" {
		ip.ID = m.nextID("IP")
	}
	m.data.insureePolicies = append(m.data.insureePolicies, *ip)
	return nil
}

// InsureePolicies exposes activation records for assertions in tests.
func (m *Memory) InsureePolicies() []contract.InsureePolicy {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]contract.InsureePolicy{}, m.data.insureePolicies...)
}

func (m *Memory) GetWaitingPeriod(_ context.Context, insuree contract.InsureeID, holder contract.PolicyHolderID) (*contract.InsureeWaitingPeriod, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getWaitingPeriodLocked(insuree, holder)
}

func (m *Memory) getWaitingPeriodLocked(insuree contract.InsureeID, holder contract.PolicyHolderID) (*contract.InsureeWaitingPeriod, error) {
	for _, wp := range m.data.waitingPeriods {
		if wp.InsureeID == insuree && wp.PolicyHolderID == holder {
			out := wp
			return &out, nil
		}
	}
	return nil, nil
}

func (m *Memory) UpdateWaitingPeriod(_ context.Context, wp *contract.InsureeWaitingPeriod) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.updateWaitingPeriodLocked(wp)
}

func (m *Memory) updateWaitingPeriodLocked(wp *contract.InsureeWaitingPeriod) error {
	if _, ok := m.data.waitingPeriods[wp.ID]; !ok {
		return contract.ErrNotFound
	}
	m.data.waitingPeriods[wp.ID] = *wp
	return nil
}

// =============================================================================
// PAYMENT STORE
// =============================================================================

func (m *Memory) CreatePayment(_ context.Context, p *contract.Payment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.createPaymentLocked(p)
}

func (m *Memory) createPaymentLocked(p *contract.Payment) error {
	if p.ID == "" {
		p.ID = contract.PaymentID(m.nextID("PAY"))
	}
	m.data.payments[p.ID] = *p
	return nil
}

func (m *Memory) UpdatePayment(_ context.Context, p *contract.Payment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.updatePaymentLocked(p)
}

func (m *Memory) updatePaymentLocked(p *contract.Payment) error {
	if _, ok := m.data.payments[p.ID]; !ok {
		return contract.ErrNotFound
	}
	m.data.payments[p.ID] = *p
	return nil
}

func (m *Memory) GetPayment(_ context.Context, id contract.PaymentID) (*contract.Payment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getPaymentLocked(id)
}

func (m *Memory) getPaymentLocked(id contract.PaymentID) (*contract.Payment, error) {
	p, ok := m.data.payments[id]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (m *Memory) CreatePaymentDetail(_ context.Context, pd *contract.PaymentDetail) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.createPaymentDetailLocked(pd)
}

func (m *Memory) createPaymentDetailLocked(pd *contract.PaymentDetail) error {
	if pd.ID == "" {
		pd.ID = m.nextID("PD")
	}
	m.data.paymentDetails = append(m.data.paymentDetails, *pd)
	return nil
}

func (m *Memory) PaymentDetailsByPayment(_ context.Context, id contract.PaymentID) ([]*contract.PaymentDetail, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.paymentDetailsByPaymentLocked(id)
}

func (m *Memory) paymentDetailsByPaymentLocked(id contract.PaymentID) ([]*contract.PaymentDetail, error) {
	var out []*contract.PaymentDetail
	for _, pd := range m.data.paymentDetails {
		if pd.PaymentID == id {
			pp := pd
			out = append(out, &pp)
		}
	}
	return out, nil
}

func (m *Memory) PaymentForContribution(_ context.Context, id contract.ContributionID) (*contract.Payment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.paymentForContributionLocked(id)
}

func (m *Memory) paymentForContributionLocked(id contract.ContributionID) (*contract.Payment, error) {
	for _, pd := range m.data.paymentDetails {
		if pd.ContributionID == id {
			p, ok := m.data.payments[pd.PaymentID]
			if !ok {
				return nil, nil
			}
			return &p, nil
		}
	}
	return nil, nil
}

func (m *Memory) CreateContribution(_ context.Context, c *contract.Contribution) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.createContributionLocked(c)
}

func (m *Memory) createContributionLocked(c *contract.Contribution) error {
	if c.ID == "" {
		c.ID = contract.ContributionID(m.nextID("PR"))
	}
	m.data.contributions[c.ID] = *c
	return nil
}

func (m *Memory) GetContribution(_ context.Context, id contract.ContributionID) (*contract.Contribution, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getContributionLocked(id)
}

func (m *Memory) getContributionLocked(id contract.ContributionID) (*contract.Contribution, error) {
	c, ok := m.data.contributions[id]
	if !ok {
		return nil, nil
	}
	return &c, nil
}

// =============================================================================
// REFERENCE STORE
// =============================================================================

func (m *Memory) GetPolicyHolder(_ context.Context, id contract.PolicyHolderID) (*contract.PolicyHolder, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getPolicyHolderLocked(id)
}

func (m *Memory) getPolicyHolderLocked(id contract.PolicyHolderID) (*contract.PolicyHolder, error) {
	h, ok := m.data.holders[id]
	if !ok {
		return nil, nil
	}
	return &h, nil
}

func (m *Memory) GetLocation(_ context.Context, id contract.LocationID) (*contract.Location, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getLocationLocked(id)
}

func (m *Memory) getLocationLocked(id contract.LocationID) (*contract.Location, error) {
	l, ok := m.data.locations[id]
	if !ok {
		return nil, nil
	}
	return &l, nil
}

func (m *Memory) GetInsuree(_ context.Context, id contract.InsureeID) (*contract.Insuree, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getInsureeLocked(id)
}

func (m *Memory) getInsureeLocked(id contract.InsureeID) (*contract.Insuree, error) {
	i, ok := m.data.insurees[id]
	if !ok {
		return nil, nil
	}
	return &i, nil
}

func (m *Memory) GetProduct(_ context.Context, id contract.ProductID) (*contract.Product, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getProductLocked(id)
}

func (m *Memory) getProductLocked(id contract.ProductID) (*contract.Product, error) {
	p, ok := m.data.products[id]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (m *Memory) GetPlan(_ context.Context, id contract.PlanID) (*contract.ContributionPlan, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getPlanLocked(id)
}

func (m *Memory) getPlanLocked(id contract.PlanID) (*contract.ContributionPlan, error) {
	p, ok := m.data.plans[id]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (m *Memory) GetBundle(_ context.Context, id contract.BundleID) (*contract.ContributionPlanBundle, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getBundleLocked(id)
}

func (m *Memory) getBundleLocked(id contract.BundleID) (*contract.ContributionPlanBundle, error) {
	b, ok := m.data.bundles[id]
	if !ok {
		return nil, nil
	}
	return &b, nil
}

func (m *Memory) BundlePlans(_ context.Context, id contract.BundleID) ([]*contract.ContributionPlan, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.bundlePlansLocked(id)
}

func (m *Memory) bundlePlansLocked(id contract.BundleID) ([]*contract.ContributionPlan, error) {
	var out []*contract.ContributionPlan
	for _, planID := range m.data.bundleMap[id] {
		if p, ok := m.data.plans[planID]; ok {
			pp := p
			out = append(out, &pp)
		}
	}
	return out, nil
}

func (m *Memory) PolicyHolderInsurees(_ context.Context, id contract.PolicyHolderID) ([]*contract.PolicyHolderInsuree, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.policyHolderInsureesLocked(id)
}

func (m *Memory) policyHolderInsureesLocked(id contract.PolicyHolderID) ([]*contract.PolicyHolderInsuree, error) {
	var out []*contract.PolicyHolderInsuree
	for _, phi := range m.data.roster[id] {
		pp := phi
		out = append(out, &pp)
	}
	return out, nil
}

// =============================================================================
// TRANSACTIONAL VIEW - writes join the surrounding WithTx
// =============================================================================

// txMemoryView routes Store calls at the parent's locked internals while
// WithTx holds the write lock.
type txMemoryView struct {
	parent *Memory
}

func (tv *txMemoryView) WithTx(_ context.Context, fn func(contract.Store) error) error {
	// already inside a transaction; nest flat
	return fn(tv)
}

func (tv *txMemoryView) CreateContract(_ context.Context, c *contract.Contract) error {
	return tv.parent.createContractLocked(c)
}
func (tv *txMemoryView) UpdateContract(_ context.Context, c *contract.Contract) error {
	return tv.parent.updateContractLocked(c)
}
func (tv *txMemoryView) GetContract(_ context.Context, id contract.ContractID) (*contract.Contract, error) {
	return tv.parent.getContractLocked(id)
}
func (tv *txMemoryView) ContractByCodeAndAmendment(_ context.Context, code string, amendment int) (*contract.Contract, error) {
	return tv.parent.contractByCodeAndAmendmentLocked(code, amendment)
}
func (tv *txMemoryView) ContractsByPolicyHolder(_ context.Context, id contract.PolicyHolderID) ([]*contract.Contract, error) {
	return tv.parent.contractsByPolicyHolderLocked(id)
}
func (tv *txMemoryView) CodesForMonth(_ context.Context, prefix string, year int, month time.Month) ([]string, error) {
	return tv.parent.codesForMonthLocked(prefix, year, month)
}
func (tv *txMemoryView) CodeExists(_ context.Context, code string) (bool, error) {
	return tv.parent.codeExistsLocked(code)
}
func (tv *txMemoryView) SoftDeleteContract(_ context.Context, id contract.ContractID) error {
	return tv.parent.softDeleteContractLocked(id)
}
func (tv *txMemoryView) ContractsToTerminate(_ context.Context, now time.Time) ([]*contract.Contract, error) {
	return tv.parent.contractsToTerminateLocked(now)
}

func (tv *txMemoryView) CreateDetails(_ context.Context, d *contract.ContractDetails) error {
	return tv.parent.createDetailsLocked(d)
}
func (tv *txMemoryView) UpdateDetails(_ context.Context, d *contract.ContractDetails) error {
	return tv.parent.updateDetailsLocked(d)
}
func (tv *txMemoryView) GetDetails(_ context.Context, id contract.DetailsID) (*contract.ContractDetails, error) {
	return tv.parent.getDetailsLocked(id)
}
func (tv *txMemoryView) DetailsByContract(_ context.Context, id contract.ContractID, confirmedOnly bool) ([]*contract.ContractDetails, error) {
	return tv.parent.detailsByContractLocked(id, confirmedOnly)
}
func (tv *txMemoryView) DetailsForInsuree(_ context.Context, insuree contract.InsureeID, holder contract.PolicyHolderID, bundle contract.BundleID) ([]*contract.ContractDetails, error) {
	return tv.parent.detailsForInsureeLocked(insuree, holder, bundle)
}

func (tv *txMemoryView) CreatePlanDetails(_ context.Context, p *contract.ContributionPlanDetails) error {
	return tv.parent.createPlanDetailsLocked(p)
}
func (tv *txMemoryView) UpdatePlanDetails(_ context.Context, p *contract.ContributionPlanDetails) error {
	return tv.parent.updatePlanDetailsLocked(p)
}
func (tv *txMemoryView) GetPlanDetails(_ context.Context, id contract.PlanDetailsID) (*contract.ContributionPlanDetails, error) {
	return tv.parent.getPlanDetailsLocked(id)
}
func (tv *txMemoryView) PlanDetailsByContract(_ context.Context, id contract.ContractID) ([]*contract.ContributionPlanDetails, error) {
	return tv.parent.planDetailsByContractLocked(id)
}
func (tv *txMemoryView) PlanDetailsByDetails(_ context.Context, id contract.DetailsID) ([]*contract.ContributionPlanDetails, error) {
	return tv.parent.planDetailsByDetailsLocked(id)
}
func (tv *txMemoryView) PlanDetailsByContribution(_ context.Context, id contract.ContributionID) (*contract.ContributionPlanDetails, error) {
	return tv.parent.planDetailsByContributionLocked(id)
}

func (tv *txMemoryView) CreatePolicy(_ context.Context, p *contract.Policy) error {
	return tv.parent.createPolicyLocked(p)
}
func (tv *txMemoryView) UpdatePolicy(_ context.Context, p *contract.Policy) error {
	return tv.parent.updatePolicyLocked(p)
}
func (tv *txMemoryView) GetPolicy(_ context.Context, id contract.PolicyID) (*contract.Policy, error) {
	return tv.parent.getPolicyLocked(id)
}
func (tv *txMemoryView) FamilyHasPolicy(_ context.Context, id contract.FamilyID) (bool, error) {
	return tv.parent.familyHasPolicyLocked(id)
}
func (tv *txMemoryView) PoliciesForFamilyProduct(_ context.Context, family contract.FamilyID, product contract.ProductID, from, to time.Time) ([]*contract.Policy, error) {
	return tv.parent.policiesForFamilyProductLocked(family, product, from, to)
}
func (tv *txMemoryView) CreateContractPolicy(_ context.Context, cp *contract.ContractPolicy) error {
	return tv.parent.createContractPolicyLocked(cp)
}
func (tv *txMemoryView) CreateInsureePolicy(_ context.Context, ip *contract.InsureePolicy) error {
	return tv.parent.createInsureePolicyLocked(ip)
}
func (tv *txMemoryView) GetWaitingPeriod(_ context.Context, insuree contract.InsureeID, holder contract.PolicyHolderID) (*contract.InsureeWaitingPeriod, error) {
	return tv.parent.getWaitingPeriodLocked(insuree, holder)
}
func (tv *txMemoryView) UpdateWaitingPeriod(_ context.Context, wp *contract.InsureeWaitingPeriod) error {
	return tv.parent.updateWaitingPeriodLocked(wp)
}

func (tv *txMemoryView) CreatePayment(_ context.Context, p *contract.Payment) error {
	return tv.parent.createPaymentLocked(p)
}
func (tv *txMemoryView) UpdatePayment(_ context.Context, p *contract.Payment) error {
	return tv.parent.updatePaymentLocked(p)
}
func (tv *txMemoryView) GetPayment(_ context.Context, id contract.PaymentID) (*contract.Payment, error) {
	return tv.parent.getPaymentLocked(id)
}
func (tv *txMemoryView) CreatePaymentDetail(_ context.Context, pd *contract.PaymentDetail) error {
	return tv.parent.createPaymentDetailLocked(pd)
}
func (tv *txMemoryView) PaymentDetailsByPayment(_ context.Context, id contract.PaymentID) ([]*contract.PaymentDetail, error) {
	return tv.parent.paymentDetailsByPaymentLocked(id)
}
func (tv *txMemoryView) PaymentForContribution(_ context.Context, id contract.ContributionID) (*contract.Payment, error) {
	return tv.parent.paymentForContributionLocked(id)
}
func (tv *txMemoryView) CreateContribution(_ context.Context, c *contract.Contribution) error {
	return tv.parent.createContributionLocked(c)
}
func (tv *txMemoryView) GetContribution(_ context.Context, id contract.ContributionID) (*contract.Contribution, error) {
	return tv.parent.getContributionLocked(id)
}

func (tv *txMemoryView) GetPolicyHolder(_ context.Context, id contract.PolicyHolderID) (*contract.PolicyHolder, error) {
	return tv.parent.getPolicyHolderLocked(id)
}
func (tv *txMemoryView) GetLocation(_ context.Context, id contract.LocationID) (*contract.Location, error) {
	return tv.parent.getLocationLocked(id)
}
func (tv *txMemoryView) GetInsuree(_ context.Context, id contract.InsureeID) (*contract.Insuree, error) {
	return tv.parent.getInsureeLocked(id)
}
func (tv *txMemoryView) GetProduct(_ context.Context, id contract.ProductID) (*contract.Product, error) {
	return tv.parent.getProductLocked(id)
}
func (tv *txMemoryView) GetPlan(_ context.Context, id contract.PlanID) (*contract.ContributionPlan, error) {
	return tv.parent.getPlanLocked(id)
}
func (tv *txMemoryView) GetBundle(_ context.Context, id contract.BundleID) (*contract.ContributionPlanBundle, error) {
	return tv.parent.getBundleLocked(id)
}
func (tv *txMemoryView) BundlePlans(_ context.Context, id contract.BundleID) ([]*contract.ContributionPlan, error) {
	return tv.parent.bundlePlansLocked(id)
}
func (tv *txMemoryView) PolicyHolderInsurees(_ context.Context, id contract.PolicyHolderID) ([]*contract.PolicyHolderInsuree, error) {
	return tv.parent.policyHolderInsureesLocked(id)
}
