package main

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"nameshare/crypto"
	"nameshare/native/claims"
	"nameshare/native/collections"
	"nameshare/native/snapshot"
	"nameshare/native/split"
	"nameshare/native/units"
)

type collectionOutput struct {
	ID                    string `json:"id" yaml:"id"`
	PayoutTarget          string `json:"payoutTarget" yaml:"payoutTarget"`
	ReferralShare         uint32 `json:"referralShare" yaml:"referralShare"`
	CommunityShare        uint32 `json:"communityShare" yaml:"communityShare"`
	EcosystemShare        uint32 `json:"ecosystemShare" yaml:"ecosystemShare"`
	ProtocolShare         uint32 `json:"protocolShare" yaml:"protocolShare"`
	HolderShare           uint32 `json:"holderShare" yaml:"holderShare"`
	PoolsIntoHolderLedger bool   `json:"poolsIntoHolderLedger" yaml:"poolsIntoHolderLedger"`
}

func collectionView(c *collections.Collection) collectionOutput {
	return collectionOutput{
		ID:                    c.ID,
		PayoutTarget:          crypto.Address(c.PayoutTarget).String(),
		ReferralShare:         c.ReferralShare,
		CommunityShare:        c.CommunityShare,
		EcosystemShare:        c.EcosystemShare,
		ProtocolShare:         c.ProtocolShare,
		HolderShare:           c.HolderShare(),
		PoolsIntoHolderLedger: c.PoolsIntoHolderLedger,
	}
}

type unitOutput struct {
	Ledger    string `json:"ledger" yaml:"ledger"`
	ID        uint64 `json:"id" yaml:"id"`
	Owner     string `json:"owner" yaml:"owner"`
	MintPoint uint64 `json:"mintPoint" yaml:"mintPoint"`
}

func unitView(ledger string, rec *units.Record) unitOutput {
	return unitOutput{Ledger: ledger, ID: rec.ID, Owner: crypto.Address(rec.Owner).String(), MintPoint: rec.MintPoint}
}

type shareOutput struct {
	Class       string `json:"class" yaml:"class"`
	Percent     uint32 `json:"percent" yaml:"percent"`
	Amount      string `json:"amount" yaml:"amount"`
	Destination string `json:"destination" yaml:"destination"`
}

type breakdownOutput struct {
	Collection string        `json:"collection" yaml:"collection"`
	Value      string        `json:"value" yaml:"value"`
	Shares     []shareOutput `json:"shares" yaml:"shares"`
}

func breakdownView(b *split.Breakdown) breakdownOutput {
	out := breakdownOutput{Collection: b.CollectionID, Value: b.Value.String()}
	for _, s := range b.Shares {
		dest := "pool:" + s.Destination.Ledger
		if !s.Destination.IsPool() {
			dest = crypto.Address(s.Destination.Account).String()
		}
		out.Shares = append(out.Shares, shareOutput{Class: string(s.Class), Percent: s.Percent, Amount: s.Amount.String(), Destination: dest})
	}
	return out
}

type snapshotOutput struct {
	Ledger        string `json:"ledger" yaml:"ledger"`
	Epoch         uint64 `json:"epoch" yaml:"epoch"`
	RewardPerUnit string `json:"rewardPerUnit" yaml:"rewardPerUnit"`
	Supply        uint64 `json:"supply" yaml:"supply"`
	UnclaimedPool string `json:"unclaimedPool" yaml:"unclaimedPool"`
	Watermark     uint64 `json:"watermark" yaml:"watermark"`
	Expired       string `json:"expired" yaml:"expired"`
}

func snapshotView(ledger string, r *snapshot.Result) snapshotOutput {
	return snapshotOutput{
		Ledger:        ledger,
		Epoch:         r.Epoch,
		RewardPerUnit: r.RewardPerUnit.String(),
		Supply:        r.Supply,
		UnclaimedPool: r.UnclaimedPool.String(),
		Watermark:     r.Watermark,
		Expired:       r.Expired.String(),
	}
}

type ledgerOutput struct {
	Ledger         string `json:"ledger" yaml:"ledger"`
	Epoch          uint64 `json:"epoch" yaml:"epoch"`
	Pool           string `json:"pool" yaml:"pool"`
	UnclaimedPool  string `json:"unclaimedPool" yaml:"unclaimedPool"`
	RewardPerUnit  string `json:"rewardPerUnit" yaml:"rewardPerUnit"`
	Supply         uint64 `json:"supply" yaml:"supply"`
	Watermark      uint64 `json:"watermark" yaml:"watermark"`
	Claimed        string `json:"claimed" yaml:"claimed"`
	ExpiredTotal   string `json:"expiredTotal" yaml:"expiredTotal"`
	DepositedTotal string `json:"depositedTotal" yaml:"depositedTotal"`
	NextSnapshotAt string `json:"nextSnapshotAt,omitempty" yaml:"nextSnapshotAt,omitempty"`
}

func ledgerView(name string, st *snapshot.State) ledgerOutput {
	return ledgerOutput{
		Ledger:         name,
		Epoch:          st.Epoch,
		Pool:           st.Pool.String(),
		UnclaimedPool:  st.UnclaimedPool.String(),
		RewardPerUnit:  st.LastReward.String(),
		Supply:         st.LastSupply,
		Watermark:      st.LastSnapshotPoint,
		Claimed:        st.Claimed.String(),
		ExpiredTotal:   st.ExpiredTotal.String(),
		DepositedTotal: st.DepositedTotal.String(),
	}
}

type withdrawalOutput struct {
	Account   string            `json:"account" yaml:"account"`
	Reference string            `json:"reference" yaml:"reference"`
	Amount    string            `json:"amount" yaml:"amount"`
	Balance   string            `json:"balance" yaml:"balance"`
	Rewards   map[string]string `json:"rewards" yaml:"rewards"`
}

func withdrawalView(w *claims.Withdrawal) withdrawalOutput {
	out := withdrawalOutput{
		Account:   crypto.Address(w.Account).String(),
		Reference: w.Reference,
		Amount:    w.Amount.String(),
		Balance:   w.Balance.String(),
		Rewards:   map[string]string{},
	}
	for _, r := range w.Rewards {
		out.Rewards[r.Ledger] = r.Amount.String()
	}
	return out
}

type balanceOutput struct {
	Account string `json:"account" yaml:"account"`
	Balance string `json:"balance" yaml:"balance"`
}

type pendingOutput struct {
	Ledger string `json:"ledger" yaml:"ledger"`
	Unit   uint64 `json:"unit" yaml:"unit"`
	Amount string `json:"amount" yaml:"amount"`
}

type eventOutput struct {
	Seq        int64             `json:"seq" yaml:"seq"`
	Type       string            `json:"type" yaml:"type"`
	Time       string            `json:"time" yaml:"time"`
	Attributes map[string]string `json:"attributes" yaml:"attributes"`
}

// print renders v in the selected output format and returns the exit code.
func (e *env) print(v any) int {
	if err := render(e.stdout, e.output, v); err != nil {
		return fail(e, err)
	}
	return 0
}

func render(w io.Writer, format string, v any) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	default:
		_, err := fmt.Fprint(w, text(v))
		return err
	}
}

// text renders v as key: value lines by way of its YAML form, with lists
// separated by blank lines.
func text(v any) string {
	var doc any
	raw, err := yaml.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v\n", v)
	}
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return string(raw)
	}
	var b strings.Builder
	switch d := doc.(type) {
	case []any:
		for i, item := range d {
			if i > 0 {
				b.WriteString("\n")
			}
			writeFields(&b, item)
		}
	default:
		writeFields(&b, d)
	}
	return b.String()
}

func writeFields(b *strings.Builder, item any) {
	m, ok := item.(map[string]any)
	if !ok {
		fmt.Fprintf(b, "%v\n", item)
		return
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		switch val := m[k].(type) {
		case []any:
			for _, nested := range val {
				fmt.Fprintf(b, "%s: %s\n", k, inline(nested))
			}
		case map[string]any:
			fmt.Fprintf(b, "%s: %s\n", k, inline(val))
		default:
			fmt.Fprintf(b, "%s: %v\n", k, val)
		}
	}
}

func inline(v any) string {
	m, ok := v.(map[string]any)
	if !ok {
		return fmt.Sprint(v)
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, m[k]))
	}
	return strings.Join(parts, " ")
}
