package main

import (
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"

	wasmgc "github.com/wippyai/wasm-gc"
	"github.com/wippyai/wasm-gc/collector"
	"github.com/wippyai/wasm-gc/memory"
)

const shellHelp = `shape <id> <size> [offset...]  define a shape (reopens registration)
alloc <id>                      allocate an object
push <word>                     push a word onto the shadow stack
pop                             pop the top stack word
store <addr> <off> <word>       write a word into memory
load <addr> <off>               read a word from memory
collect                         run a collection cycle
objects | shapes | stack        list live objects, shapes or stack words
stats                           show collector statistics
reset                           destroy the collector and start over
help | quit`

// shell drives a collector over an in-process arena, one command at a time.
type shell struct {
	log      *zap.Logger
	arena    *memory.Arena
	gc       *collector.Collector
	size     uint32
	finished bool
}

func newShell(size uint32, log *zap.Logger) (*shell, error) {
	s := &shell{log: log, size: size}
	if err := s.reset(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *shell) reset() error {
	if s.gc != nil && s.gc.State() == collector.StateInitialized {
		if err := s.gc.Destroy(); err != nil {
			s.log.Warn("destroy failed", zap.Error(err))
		}
	}
	cfg := collector.DefaultConfig()
	cfg.CollectThreshold = 0
	cfg.Logger = s.log

	s.arena = memory.NewArena(s.size)
	s.gc = collector.New(s.arena, s.arena, s.arena, cfg)
	s.finished = false
	return s.gc.Init()
}

// exec runs one command line and returns its output.
func (s *shell) exec(line string) (string, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return "", nil
	}
	cmd, args := fields[0], fields[1:]

	nums := make([]uint32, 0, len(args))
	for _, a := range args {
		v, err := strconv.ParseUint(a, 0, 32)
		if err != nil {
			return "", fmt.Errorf("%s: bad number %q", cmd, a)
		}
		nums = append(nums, uint32(v))
	}

	switch cmd {
	case "help":
		return shellHelp, nil
	case "shape":
		if len(nums) < 2 {
			return "", fmt.Errorf("usage: shape <id> <size> [offset...]")
		}
		return s.defineShape(wasmgc.ShapeID(nums[0]), nums[1], nums[2:])
	case "alloc":
		if len(nums) != 1 {
			return "", fmt.Errorf("usage: alloc <id>")
		}
		addr, err := s.gc.Allocate(wasmgc.ShapeID(nums[0]))
		if err != nil {
			return "", err
		}
		return addr.String(), nil
	case "push":
		if len(nums) != 1 {
			return "", fmt.Errorf("usage: push <word>")
		}
		slot, err := s.arena.Push(nums[0])
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%s <- 0x%x", slot, nums[0]), nil
	case "pop":
		v, err := s.arena.Pop()
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("0x%x", v), nil
	case "store":
		if len(nums) != 3 {
			return "", fmt.Errorf("usage: store <addr> <off> <word>")
		}
		at := wasmgc.Addr(nums[0]).Add(nums[1])
		if err := s.arena.WriteU32(at, nums[2]); err != nil {
			return "", err
		}
		return fmt.Sprintf("%s = 0x%x", at, nums[2]), nil
	case "load":
		if len(nums) != 2 {
			return "", fmt.Errorf("usage: load <addr> <off>")
		}
		at := wasmgc.Addr(nums[0]).Add(nums[1])
		v, err := s.arena.ReadU32(at)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%s = 0x%x", at, v), nil
	case "collect":
		cs, err := s.gc.Collect()
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("roots=%d marked=%d freed=%d (%d bytes) live=%d in %s",
			cs.Roots, cs.Marked, cs.Freed, cs.FreedBytes, cs.LiveObjects, cs.Duration), nil
	case "objects":
		return s.objects(), nil
	case "shapes":
		return s.shapes(), nil
	case "stack":
		return s.stack()
	case "stats":
		return strings.TrimRight(renderStats(s.gc.Stats(), 0), "\n"), nil
	case "reset":
		if err := s.reset(); err != nil {
			return "", err
		}
		return "collector reset", nil
	default:
		return "", fmt.Errorf("unknown command %q, try help", cmd)
	}
}

func (s *shell) defineShape(id wasmgc.ShapeID, size uint32, offsets []uint32) (string, error) {
	if s.finished {
		if err := s.gc.ReopenRegistration(); err != nil {
			return "", err
		}
	}
	if err := s.gc.BeginShape(id); err != nil {
		return "", err
	}
	if err := s.gc.SetSize(size); err != nil {
		return "", err
	}
	for _, off := range offsets {
		if err := s.gc.AddPointerOffset(off); err != nil {
			return "", err
		}
	}
	if err := s.gc.FinishRegistration(); err != nil {
		return "", err
	}
	s.finished = true
	return fmt.Sprintf("shape %d: %d bytes, pointers at %v", id, size, offsets), nil
}

func (s *shell) objects() string {
	objs := s.gc.Objects()
	if len(objs) == 0 {
		return "no live objects"
	}
	lines := make([]string, 0, len(objs))
	for _, o := range objs {
		lines = append(lines, fmt.Sprintf("%s shape=%d size=%d", o.Addr, o.Shape, o.Size))
	}
	return strings.Join(lines, "\n")
}

func (s *shell) shapes() string {
	shapes := s.gc.Shapes()
	if len(shapes) == 0 {
		return "no shapes"
	}
	lines := make([]string, 0, len(shapes))
	for _, sh := range shapes {
		lines = append(lines, fmt.Sprintf("%d: %d bytes, pointers at %v", sh.ID(), sh.Size(), sh.PointerOffsets()))
	}
	return strings.Join(lines, "\n")
}

func (s *shell) stack() (string, error) {
	sp, err := s.arena.StackPointer()
	if err != nil {
		return "", err
	}
	top := s.gc.StackBase()
	if sp >= top {
		return "stack is empty", nil
	}
	var lines []string
	for at := sp; at < top; at += wasmgc.PointerSize {
		v, err := s.arena.ReadU32(at)
		if err != nil {
			return "", err
		}
		mark := ""
		if _, ok := s.gc.Lookup(wasmgc.Addr(v)); ok {
			mark = "  *"
		}
		lines = append(lines, fmt.Sprintf("%s: 0x%x%s", at, v, mark))
	}
	return strings.Join(lines, "\n"), nil
}
