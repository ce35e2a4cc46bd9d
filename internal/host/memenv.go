// Package host provides Environment implementations: an in-memory
// environment with a snapshot/undo journal, an introspection cache
// decorator, and a JSON-RPC node backed environment.
package host

import (
	"context"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/omnes-tech/multi-static-call/internal/bytesutil"
	"github.com/omnes-tech/multi-static-call/internal/multicall"
)

// errWriteProtection is the panic value raised when a handler mutates state
// during a static call. The environment converts it into a failed call.
var errWriteProtection = fmt.Errorf("write protection: state mutation in static call")

// CallHandler is the programmable body of an in-memory account. It runs
// with a CallContext scoped to the invocation and reports success, return
// data and the cost it consumed.
type CallHandler func(ctx *CallContext) (ok bool, ret []byte, cost uint64)

// CallContext is what a handler sees of its invocation.
type CallContext struct {
	env    *MemEnv
	Self   common.Address
	Input  []byte
	Value  *uint256.Int
	static bool
}

// GetState reads a storage slot of the current account.
func (c *CallContext) GetState(key string) []byte {
	return c.env.getState(c.Self, key)
}

// SetState writes a storage slot of the current account. Rejected by the
// environment inside a static call.
func (c *CallContext) SetState(key string, value []byte) {
	if c.static {
		panic(errWriteProtection)
	}
	c.env.setState(c.Self, key, value)
}

// Transfer moves native value from the current account to another one.
// Rejected inside a static call.
func (c *CallContext) Transfer(to common.Address, amount *uint256.Int) bool {
	if c.static {
		panic(errWriteProtection)
	}
	return c.env.transfer(c.Self, to, amount)
}

// CallNested invokes another account from within a handler, inheriting the
// static restriction of the enclosing call.
func (c *CallContext) CallNested(target common.Address, input []byte, value *uint256.Int) (bool, []byte, uint64) {
	if c.static {
		return c.env.runCall(target, input, uint256.NewInt(0), true)
	}
	return c.env.runCall(target, input, value, false)
}

type memAccount struct {
	balance *uint256.Int
	code    []byte
	handler CallHandler
}

// journalEntry undoes one state mutation.
type journalEntry interface {
	revert(*MemEnv)
}

type balanceChange struct {
	addr common.Address
	prev *uint256.Int
}

func (e balanceChange) revert(env *MemEnv) {
	env.account(e.addr).balance = e.prev
}

type storageChange struct {
	addr    common.Address
	key     string
	prev    []byte
	existed bool
}

func (e storageChange) revert(env *MemEnv) {
	slots := env.storage[e.addr]
	if e.existed {
		slots[e.key] = e.prev
	} else {
		delete(slots, e.key)
	}
}

// MemEnv is an in-memory environment with accounts, per-account key/value
// storage and a journal so every mutation since a snapshot can be undone as
// a unit. It carries the explicit undo log the batch core relies on when no
// enclosing environment provides rollback-on-failure.
type MemEnv struct {
	mu        sync.Mutex
	accounts  map[common.Address]*memAccount
	storage   map[common.Address]map[string][]byte
	chain     multicall.ChainFacts
	journal   []journalEntry
	snapshots []int
}

// NewMemEnv creates an empty in-memory environment.
func NewMemEnv() *MemEnv {
	return &MemEnv{
		accounts: make(map[common.Address]*memAccount),
		storage:  make(map[common.Address]map[string][]byte),
	}
}

func (env *MemEnv) account(addr common.Address) *memAccount {
	acc, ok := env.accounts[addr]
	if !ok {
		acc = &memAccount{balance: uint256.NewInt(0)}
		env.accounts[addr] = acc
	}
	return acc
}

// SetBalance sets an account balance. Not journaled; test setup only.
func (env *MemEnv) SetBalance(addr common.Address, balance *uint256.Int) {
	env.mu.Lock()
	defer env.mu.Unlock()
	env.account(addr).balance = balance.Clone()
}

// SetAccount installs code bytes and a handler at addr. The code length
// introspection reports len(code); the handler runs on calls.
func (env *MemEnv) SetAccount(addr common.Address, code []byte, handler CallHandler) {
	env.mu.Lock()
	defer env.mu.Unlock()
	acc := env.account(addr)
	acc.code = bytesutil.Copy(code)
	acc.handler = handler
}

// SetChainFacts installs the fact tuple returned by ChainFacts.
func (env *MemEnv) SetChainFacts(facts multicall.ChainFacts) {
	env.mu.Lock()
	defer env.mu.Unlock()
	env.chain = facts
}

func (env *MemEnv) getState(addr common.Address, key string) []byte {
	return bytesutil.Copy(env.storage[addr][key])
}

func (env *MemEnv) setState(addr common.Address, key string, value []byte) {
	slots, ok := env.storage[addr]
	if !ok {
		slots = make(map[string][]byte)
		env.storage[addr] = slots
	}
	prev, existed := slots[key]
	env.journal = append(env.journal, storageChange{addr: addr, key: key, prev: prev, existed: existed})
	slots[key] = bytesutil.Copy(value)
}

func (env *MemEnv) transfer(from, to common.Address, amount *uint256.Int) bool {
	if amount == nil || amount.IsZero() {
		return true
	}
	src, dst := env.account(from), env.account(to)
	if src.balance.Lt(amount) {
		return false
	}
	env.journal = append(env.journal,
		balanceChange{addr: from, prev: src.balance.Clone()},
		balanceChange{addr: to, prev: dst.balance.Clone()})
	src.balance = new(uint256.Int).Sub(src.balance, amount)
	dst.balance = new(uint256.Int).Add(dst.balance, amount)
	return true
}

// snapshotLocked marks the journal position. Callers hold env.mu.
func (env *MemEnv) snapshotLocked() int {
	env.snapshots = append(env.snapshots, len(env.journal))
	return len(env.snapshots) - 1
}

func (env *MemEnv) revertLocked(id int) {
	if id < 0 || id >= len(env.snapshots) {
		return
	}
	mark := env.snapshots[id]
	for i := len(env.journal) - 1; i >= mark; i-- {
		env.journal[i].revert(env)
	}
	env.journal = env.journal[:mark]
	env.snapshots = env.snapshots[:id]
}

// Snapshot implements multicall.Environment.
func (env *MemEnv) Snapshot() int {
	env.mu.Lock()
	defer env.mu.Unlock()
	return env.snapshotLocked()
}

// RevertToSnapshot implements multicall.Environment.
func (env *MemEnv) RevertToSnapshot(id int) {
	env.mu.Lock()
	defer env.mu.Unlock()
	env.revertLocked(id)
}

// runCall executes one invocation. A failing callee has its own effects
// undone while the rest of the batch's effects stay, matching call-level
// revert semantics. Callers hold env.mu.
func (env *MemEnv) runCall(target common.Address, input []byte, value *uint256.Int, static bool) (ok bool, ret []byte, cost uint64) {
	snap := env.snapshotLocked()

	defer func() {
		if r := recover(); r != nil {
			if r != errWriteProtection {
				panic(r)
			}
			env.revertLocked(snap)
			ok, ret, cost = false, nil, 0
		}
	}()

	if !static {
		// Value arrives minted at the target; the caller is external to
		// the environment and has no account to debit.
		if value != nil && !value.IsZero() {
			acc := env.account(target)
			env.journal = append(env.journal, balanceChange{addr: target, prev: acc.balance.Clone()})
			acc.balance = new(uint256.Int).Add(acc.balance, value)
		}
	}

	acc := env.account(target)
	if acc.handler == nil {
		// Call to an account without code succeeds with no return data.
		return true, nil, 0
	}

	cctx := &CallContext{
		env:    env,
		Self:   target,
		Input:  bytesutil.Copy(input),
		Value:  value,
		static: static,
	}
	ok, ret, cost = acc.handler(cctx)
	if !ok {
		env.revertLocked(snap)
	}
	return ok, bytesutil.Copy(ret), cost
}

// Call implements multicall.Environment.
func (env *MemEnv) Call(ctx context.Context, target common.Address, data []byte, value *uint256.Int) (multicall.CallResult, error) {
	if err := ctx.Err(); err != nil {
		return multicall.CallResult{}, err
	}
	env.mu.Lock()
	defer env.mu.Unlock()
	ok, ret, cost := env.runCall(target, data, value, false)
	return multicall.CallResult{Success: ok, ReturnData: ret, CostUsed: cost}, nil
}

// StaticCall implements multicall.Environment. Handlers that mutate state
// are failed by the environment itself.
func (env *MemEnv) StaticCall(ctx context.Context, target common.Address, data []byte) (bool, []byte, error) {
	if err := ctx.Err(); err != nil {
		return false, nil, err
	}
	env.mu.Lock()
	defer env.mu.Unlock()
	ok, ret, _ := env.runCall(target, data, uint256.NewInt(0), true)
	return ok, ret, nil
}

// CodeLength implements multicall.Environment.
func (env *MemEnv) CodeLength(ctx context.Context, addr common.Address) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	env.mu.Lock()
	defer env.mu.Unlock()
	if acc, ok := env.accounts[addr]; ok {
		return uint64(len(acc.code)), nil
	}
	return 0, nil
}

// Balance implements multicall.Environment.
func (env *MemEnv) Balance(ctx context.Context, addr common.Address) (*uint256.Int, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	env.mu.Lock()
	defer env.mu.Unlock()
	if acc, ok := env.accounts[addr]; ok {
		return acc.balance.Clone(), nil
	}
	return uint256.NewInt(0), nil
}

// ChainFacts implements multicall.Environment.
func (env *MemEnv) ChainFacts(ctx context.Context) (*multicall.ChainFacts, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	env.mu.Lock()
	defer env.mu.Unlock()
	facts := env.chain
	return &facts, nil
}
