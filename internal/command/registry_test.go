package command

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var noop = HandlerFunc(func(context.Context, *Context) error { return nil })

func TestRegisterDefaults(t *testing.T) {
	r := NewRegistry(".")

	d, err := r.Register(&Descriptor{Name: "  Ping ", Handler: noop})
	require.NoError(t, err)

	assert.Equal(t, "ping", d.Name)
	assert.Equal(t, DefaultCategory, d.Category)
	assert.Equal(t, DefaultCooldown, d.CooldownSeconds())
	assert.Equal(t, ".ping", d.Usage)
	assert.False(t, d.RequiresOwner || d.RequiresAdmin || d.RequiresBotAdmin || d.RequiresGroup || d.RequiresPrivate)
}

func TestRegisterExplicitZeroCooldown(t *testing.T) {
	r := NewRegistry(".")
	d, err := r.Register(&Descriptor{Name: "fast", Cooldown: Seconds(0), Handler: noop})
	require.NoError(t, err)
	assert.Equal(t, 0, d.CooldownSeconds())
}

func TestRegisterUsageWithoutPrefix(t *testing.T) {
	r := NewRegistry("")
	d, err := r.Register(&Descriptor{Name: "ping", Handler: noop})
	require.NoError(t, err)
	assert.Equal(t, "ping", d.Usage)
}

func TestRegisterDoesNotMutateInput(t *testing.T) {
	r := NewRegistry(".")
	cd := 5
	in := &Descriptor{Name: "Help", Aliases: []string{"H"}, Cooldown: &cd, Handler: noop}

	d, err := r.Register(in)
	require.NoError(t, err)
	assert.Equal(t, "Help", in.Name)
	assert.Equal(t, []string{"H"}, in.Aliases)

	cd = 99
	assert.Equal(t, 5, d.CooldownSeconds())
}

func TestAliasesResolveToSameInstance(t *testing.T) {
	r := NewRegistry(".")
	d, err := r.Register(&Descriptor{Name: "help", Aliases: []string{"h", "menu"}, Handler: noop})
	require.NoError(t, err)

	for _, key := range []string{"help", "h", "menu", "HELP", "H", " Menu "} {
		got, ok := r.Resolve(key)
		require.True(t, ok, key)
		assert.Same(t, d, got, key)
	}

	_, ok := r.Resolve("unknown")
	assert.False(t, ok)
	_, ok = r.Resolve("hel")
	assert.False(t, ok, "resolution must be exact")
}

func TestRegisterDuplicateLeavesStateUnchanged(t *testing.T) {
	tests := []struct {
		name      string
		d         *Descriptor
		collision string
	}{
		{"same primary", &Descriptor{Name: "HELP", Handler: noop}, "help"},
		{"primary equals existing alias", &Descriptor{Name: "h", Handler: noop}, "h"},
		{"alias equals existing primary", &Descriptor{Name: "info", Aliases: []string{"x", "help"}, Handler: noop}, "help"},
		{"alias equals existing alias", &Descriptor{Name: "info", Aliases: []string{"menu"}, Handler: noop}, "menu"},
		{"alias repeats own name", &Descriptor{Name: "info", Aliases: []string{"INFO"}, Handler: noop}, "info"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewRegistry(".")
			orig, err := r.Register(&Descriptor{Name: "help", Aliases: []string{"h", "menu"}, Handler: noop})
			require.NoError(t, err)

			_, err = r.Register(tt.d)
			var dup *DuplicateNameError
			require.True(t, errors.As(err, &dup), "got %v", err)
			assert.Equal(t, tt.collision, dup.Name)

			assert.Equal(t, 1, r.Len())
			for _, key := range []string{"help", "h", "menu"} {
				got, ok := r.Resolve(key)
				require.True(t, ok)
				assert.Same(t, orig, got)
			}
			_, ok := r.Resolve("x")
			assert.False(t, ok, "partial registration leaked")
			_, ok = r.Resolve("info")
			assert.False(t, ok, "partial registration leaked")
		})
	}
}

func TestRegisterInvalid(t *testing.T) {
	r := NewRegistry(".")

	_, err := r.Register(&Descriptor{Name: "", Handler: noop})
	assert.ErrorIs(t, err, ErrInvalidDescriptor)

	_, err = r.Register(&Descriptor{Name: "two words", Handler: noop})
	assert.ErrorIs(t, err, ErrInvalidDescriptor)

	_, err = r.Register(&Descriptor{Name: "nohandler"})
	assert.ErrorIs(t, err, ErrInvalidDescriptor)

	_, err = r.Register(&Descriptor{Name: "neg", Cooldown: Seconds(-1), Handler: noop})
	assert.ErrorIs(t, err, ErrInvalidDescriptor)

	_, err = r.Register(nil)
	assert.ErrorIs(t, err, ErrInvalidDescriptor)

	assert.Equal(t, 0, r.Len())
}

func TestListByCategory(t *testing.T) {
	r := NewRegistry(".")
	r.MustRegister(&Descriptor{Name: "sticker", Category: "Convert", Aliases: []string{"s"}, Handler: noop})
	r.MustRegister(&Descriptor{Name: "ping", Handler: noop})
	r.MustRegister(&Descriptor{Name: "toimg", Category: "convert", Handler: noop})
	r.MustRegister(&Descriptor{Name: "kick", Category: "group", Handler: noop})

	byCat := r.ListByCategory()
	require.Len(t, byCat, 3)

	var convert []string
	for _, d := range byCat["convert"] {
		convert = append(convert, d.Name)
	}
	assert.Equal(t, []string{"sticker", "toimg"}, convert)
	assert.Len(t, byCat["misc"], 1)
	assert.Equal(t, []string{"convert", "group", "misc"}, r.Categories())
	assert.Equal(t, 4, r.Len())
}

func TestMustRegisterPanicsOnDuplicate(t *testing.T) {
	r := NewRegistry(".")
	r.MustRegister(&Descriptor{Name: "ping", Handler: noop})
	assert.Panics(t, func() { r.MustRegister(&Descriptor{Name: "ping", Handler: noop}) })
}

func TestConcurrentResolve(t *testing.T) {
	r := NewRegistry(".")
	d := r.MustRegister(&Descriptor{Name: "help", Aliases: []string{"h"}, Handler: noop})

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, ok := r.Resolve("H")
			assert.True(t, ok)
			assert.Same(t, d, got)
		}()
	}
	wg.Wait()
}

func TestLiveSwap(t *testing.T) {
	first := NewRegistry(".")
	first.MustRegister(&Descriptor{Name: "old", Handler: noop})
	live := NewLive(first)

	next := NewRegistry(".")
	next.MustRegister(&Descriptor{Name: "new", Handler: noop})

	prev := live.Swap(next)
	assert.Same(t, first, prev)

	_, ok := live.Load().Resolve("new")
	assert.True(t, ok)
	_, ok = live.Load().Resolve("old")
	assert.False(t, ok)
}

type recordingResponder struct {
	replies []string
	reacts  []string
}

func (r *recordingResponder) Reply(_ context.Context, _ *Invocation, text string) error {
	r.replies = append(r.replies, text)
	return nil
}

func (r *recordingResponder) React(_ context.Context, _ *Invocation, emoji string) error {
	r.reacts = append(r.reacts, emoji)
	return nil
}

func TestContextAccessors(t *testing.T) {
	reg := NewRegistry("!")
	d := reg.MustRegister(&Descriptor{Name: "echo", Handler: noop})
	inv := &Invocation{
		Name:     "echo",
		Args:     []string{"a", "b"},
		ArgText:  "a  b",
		SenderID: "1555@s.whatsapp.net",
		ChatID:   "123@g.us",
		IsGroup:  true,
		Quoted:   &MessageRef{ID: "q1"},
	}
	resp := &recordingResponder{}
	c := NewContext(inv, d, reg, resp)

	require.NoError(t, c.Reply(context.Background(), "hi"))
	require.NoError(t, c.React(context.Background(), "👍"))

	assert.Equal(t, []string{"hi"}, resp.replies)
	assert.Equal(t, []string{"👍"}, resp.reacts)
	assert.Equal(t, []string{"a", "b"}, c.Args())
	assert.Equal(t, "a  b", c.ArgText())
	assert.Equal(t, "1555@s.whatsapp.net", c.SenderID())
	assert.Equal(t, "123@g.us", c.ChatID())
	assert.True(t, c.IsGroup())
	assert.Equal(t, "q1", c.Quoted().ID)
	assert.Equal(t, "!", c.Prefix())
}
