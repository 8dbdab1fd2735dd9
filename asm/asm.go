// Package asm is the disassembler: it turns a raw byte stream, or a text
// listing in the `PC  OPCODE [=> 0xIMMEDIATE]` shape, into an ordered list
// of EVMOp. This is the "straightforward disassembler" the core spec treats
// as an external collaborator (spec.md §1), reworked from the teacher's
// `asm.go` (`Asm`/`Line` pair) which did the same job for an interpreter's
// program counter.
package asm

import (
	"bufio"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"github.com/aj3423/evmdecomp/opcodes"
	"github.com/holiman/uint256"
	"github.com/pkg/errors"
)

// ErrUnknownOpcode is returned (only in strict mode) when a byte doesn't
// correspond to any entry in the opcode metadata table.
var ErrUnknownOpcode = errors.New("unknown opcode")

// ErrTruncatedPush is returned (only in strict mode) when a PUSHn's
// immediate runs past the end of the byte stream.
var ErrTruncatedPush = errors.New("truncated push immediate")

// EVMOp is a single decoded instruction: its pc, opcode, and (for PUSHn)
// the immediate value it carries.
type EVMOp struct {
	Pc        uint64
	Op        opcodes.Op
	Immediate *uint256.Int // non-nil only for PUSHn
}

func (o *EVMOp) String() string {
	if o.Immediate != nil {
		return fmt.Sprintf("%d %s => %s", o.Pc, o.Op.String(), o.Immediate.Hex())
	}
	return fmt.Sprintf("%d %s", o.Pc, o.Op.String())
}

// Program is the flat, pc-ordered decode of a contract's bytecode.
type Program struct {
	Ops   []*EVMOp
	byPc  map[uint64]*EVMOp
	Bytes []byte
}

func (p *Program) AtPc(pc uint64) (*EVMOp, bool) {
	o, ok := p.byPc[pc]
	return o, ok
}

// IsValidJumpDest reports whether pc holds a JUMPDEST instruction. Pcs that
// land inside a PUSH immediate are never in byPc and so correctly report
// false here, matching vandal's/EVM's requirement that jump destinations be
// syntactically JUMPDEST opcodes, not accidental matches inside data.
func (p *Program) IsValidJumpDest(pc uint64) bool {
	o, ok := p.byPc[pc]
	return ok && o.Op.IsJumpDest()
}

// MaxPc returns the pc one past the last decoded instruction.
func (p *Program) MaxPc() uint64 {
	if len(p.Ops) == 0 {
		return 0
	}
	last := p.Ops[len(p.Ops)-1]
	return last.Pc + 1 + uint64(last.Op.PushWidth())
}

// DisasmHex decodes a hex string (with or without a leading "0x") of raw
// runtime bytecode.
func DisasmHex(hexStr string, strict bool) (*Program, error) {
	hexStr = strings.TrimPrefix(strings.TrimSpace(hexStr), "0x")
	raw, err := hex.DecodeString(hexStr)
	if err != nil {
		return nil, errors.Wrap(err, "decoding hex bytecode")
	}
	return Disasm(raw, strict)
}

// Disasm decodes a raw EVM bytecode byte slice into a Program.
func Disasm(code []byte, strict bool) (*Program, error) {
	p := &Program{byPc: map[uint64]*EVMOp{}, Bytes: code}

	pc := uint64(0)
	for pc < uint64(len(code)) {
		b := code[pc]
		op := opcodes.Op(b)

		meta, known := opcodes.Lookup(op)
		if !known {
			if strict {
				return nil, errors.Wrapf(ErrUnknownOpcode, "pc %d: 0x%02x", pc, b)
			}
			// Unknown opcode: treat as a zero-effect, single-byte op so
			// decoding can continue; it contributes no stack delta.
			line := &EVMOp{Pc: pc, Op: op}
			p.Ops = append(p.Ops, line)
			p.byPc[pc] = line
			pc++
			continue
		}

		line := &EVMOp{Pc: pc, Op: op}

		if w := meta.PushBytes; w > 0 {
			end := pc + 1 + uint64(w)
			if end > uint64(len(code)) {
				if strict {
					return nil, errors.Wrapf(ErrTruncatedPush, "pc %d", pc)
				}
				end = uint64(len(code))
			}
			imm := new(uint256.Int).SetBytes(code[pc+1 : end])
			line.Immediate = imm
			p.Ops = append(p.Ops, line)
			p.byPc[pc] = line
			pc = end
			continue
		}

		p.Ops = append(p.Ops, line)
		p.byPc[pc] = line
		pc++
	}

	return p, nil
}

// ParseListing parses a text disassembly: one instruction per line, shaped
// `PC  OPCODE [=> 0xIMMEDIATE]`. Whitespace between fields is flexible and
// blank lines are ignored, per spec.md §6 Inputs.
func ParseListing(text string, strict bool) (*Program, error) {
	p := &Program{byPc: map[uint64]*EVMOp{}}

	sc := bufio.NewScanner(strings.NewReader(text))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}

		fields := strings.Fields(line)
		if len(fields) < 2 {
			return nil, errors.Errorf("malformed listing line: %q", line)
		}

		pc, err := strconv.ParseUint(fields[0], 10, 64)
		if err != nil {
			return nil, errors.Wrapf(err, "parsing pc in line %q", line)
		}

		opName := fields[1]
		op, ok := lookupByName(opName)
		if !ok {
			if strict {
				return nil, errors.Wrapf(ErrUnknownOpcode, "line %q", line)
			}
			op = opcodes.Op(0xfe) // fall back to INVALID
		}

		ev := &EVMOp{Pc: pc, Op: op}

		// `=> 0xIMMEDIATE` trailer, for PUSHn lines.
		if idx := indexOf(fields, "=>"); idx >= 0 && idx+1 < len(fields) {
			immStr := strings.TrimPrefix(fields[idx+1], "0x")
			if immStr == "" {
				immStr = "0"
			}
			imm, err := uint256.FromHex("0x" + immStr)
			if err != nil {
				return nil, errors.Wrapf(err, "parsing immediate in line %q", line)
			}
			ev.Immediate = imm
		}

		p.Ops = append(p.Ops, ev)
		p.byPc[pc] = ev
	}
	if err := sc.Err(); err != nil {
		return nil, errors.Wrap(err, "scanning listing")
	}

	return p, nil
}

func indexOf(fields []string, s string) int {
	for i, f := range fields {
		if f == s {
			return i
		}
	}
	return -1
}

var nameToOp map[string]opcodes.Op

func lookupByName(name string) (opcodes.Op, bool) {
	if nameToOp == nil {
		nameToOp = map[string]opcodes.Op{}
		for b := 0; b < 0x100; b++ {
			op := opcodes.Op(b)
			if _, ok := opcodes.Lookup(op); ok {
				nameToOp[op.String()] = op
			}
		}
	}
	op, ok := nameToOp[strings.ToUpper(name)]
	return op, ok
}
