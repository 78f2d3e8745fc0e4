package config

import (
	"errors"
	"testing"

	"github.com/MrWong99/natuvoice/pkg/provider/stt"
	sttmock "github.com/MrWong99/natuvoice/pkg/provider/stt/mock"
	"github.com/MrWong99/natuvoice/pkg/provider/tts"
	ttsmock "github.com/MrWong99/natuvoice/pkg/provider/tts/mock"
)

func TestRegistry_CreateRegistered(t *testing.T) {
	reg := NewRegistry()
	var got ProviderEntry
	reg.RegisterSTT("mock", func(e ProviderEntry) (stt.Provider, error) {
		got = e
		return &sttmock.Provider{Text: "hola"}, nil
	})

	p, err := reg.CreateSTT(ProviderEntry{Name: "mock", Model: "tiny"})
	if err != nil {
		t.Fatalf("CreateSTT: %v", err)
	}
	if p == nil || got.Model != "tiny" {
		t.Errorf("factory saw %+v", got)
	}
}

func TestRegistry_NotRegistered(t *testing.T) {
	reg := NewRegistry()
	_, err := reg.CreateTTS(ProviderEntry{Name: "nope"})
	if !errors.Is(err, ErrProviderNotRegistered) {
		t.Fatalf("err = %v, want ErrProviderNotRegistered", err)
	}
}

func TestRegistry_FactoryError(t *testing.T) {
	reg := NewRegistry()
	boom := errors.New("missing api key")
	reg.RegisterTTS("elevenlabs", func(ProviderEntry) (tts.Provider, error) { return nil, boom })

	if _, err := reg.CreateTTS(ProviderEntry{Name: "elevenlabs"}); !errors.Is(err, boom) {
		t.Fatalf("err = %v, want factory error", err)
	}
}

func TestRegistry_OverwriteAndNames(t *testing.T) {
	reg := NewRegistry()
	first := &ttsmock.Provider{}
	second := &ttsmock.Provider{}
	reg.RegisterTTS("coqui", func(ProviderEntry) (tts.Provider, error) { return first, nil })
	reg.RegisterTTS("coqui", func(ProviderEntry) (tts.Provider, error) { return second, nil })
	reg.RegisterTTS("elevenlabs", func(ProviderEntry) (tts.Provider, error) { return first, nil })

	p, _ := reg.CreateTTS(ProviderEntry{Name: "coqui"})
	if p != tts.Provider(second) {
		t.Error("later registration did not overwrite the earlier one")
	}
	names := reg.Names()["tts"]
	if len(names) != 2 || names[0] != "coqui" || names[1] != "elevenlabs" {
		t.Errorf("Names()[tts] = %v", names)
	}
}
