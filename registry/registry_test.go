package registry

import "testing"

func f64(v float64) *float64 { return &v }

func twoProviderModel() CanonicalModel {
	return CanonicalModel{
		ID:          "llama-3.3-70b",
		DisplayName: "Llama 3.3 70B",
		Aliases:     []string{"meta-llama/llama-3.3-70b", "llama-3.3-70b-instruct"},
		Bindings: []ProviderBinding{
			{Provider: "together", NativeID: "meta-llama/Llama-3.3-70B-Instruct-Turbo", Priority: 2, Enabled: true, InputPerToken: f64(5e-7), OutputPerToken: f64(8e-7)},
			{Provider: "fireworks", NativeID: "accounts/fireworks/models/llama-v3p3-70b-instruct", Priority: 1, Enabled: true, InputPerToken: f64(9e-7), OutputPerToken: f64(9e-7)},
		},
	}
}

func TestRegisterSortsBindingsByPriority(t *testing.T) {
	r := New(nil, nil)
	if err := r.Register(twoProviderModel()); err != nil {
		t.Fatalf("Register: %v", err)
	}
	cm, ok := r.Get("llama-3.3-70b")
	if !ok {
		t.Fatal("expected model to be registered")
	}
	if len(cm.Bindings) != 2 {
		t.Fatalf("expected 2 bindings, got %d", len(cm.Bindings))
	}
	if cm.Bindings[0].Provider != "fireworks" || cm.Bindings[1].Provider != "together" {
		t.Fatalf("expected fireworks (prio=1) before together (prio=2), got %v", cm.Bindings)
	}
}

func TestRegisterRejectsEmptyBindings(t *testing.T) {
	r := New(nil, nil)
	err := r.Register(CanonicalModel{ID: "empty"})
	if err == nil {
		t.Fatal("expected error registering a canonical model with no bindings")
	}
}

func TestRegisterReplacesSameProviderBinding(t *testing.T) {
	r := New(nil, nil)
	if err := r.Register(twoProviderModel()); err != nil {
		t.Fatal(err)
	}
	if err := r.Register(CanonicalModel{
		ID: "llama-3.3-70b",
		Bindings: []ProviderBinding{
			{Provider: "fireworks", NativeID: "new-native-id", Priority: 5, Enabled: true},
		},
	}); err != nil {
		t.Fatal(err)
	}
	cm, _ := r.Get("llama-3.3-70b")
	if len(cm.Bindings) != 2 {
		t.Fatalf("expected provider replace, not append: got %d bindings", len(cm.Bindings))
	}
	for _, b := range cm.Bindings {
		if b.Provider == "fireworks" && b.NativeID != "new-native-id" {
			t.Fatalf("expected fireworks binding to be replaced, native id=%s", b.NativeID)
		}
	}
}

func TestResolveAliasCaseInsensitive(t *testing.T) {
	r := New(nil, nil)
	if err := r.Register(twoProviderModel()); err != nil {
		t.Fatal(err)
	}
	id, ok := r.Resolve("META-LLAMA/Llama-3.3-70B")
	if !ok || id != "llama-3.3-70b" {
		t.Fatalf("expected resolve to llama-3.3-70b, got %q ok=%v", id, ok)
	}
	if _, ok := r.Resolve("unknown-xyz"); ok {
		t.Fatal("expected unknown identifier to not resolve")
	}
}

func TestResolveIsIdempotent(t *testing.T) {
	r := New(nil, nil)
	if err := r.Register(twoProviderModel()); err != nil {
		t.Fatal(err)
	}
	id, ok := r.Resolve("llama-3.3-70b-instruct")
	if !ok {
		t.Fatal("expected resolve")
	}
	id2, ok2 := r.Resolve(id)
	if !ok2 || id2 != id {
		t.Fatalf("Resolve(Resolve(x)) should be a fixed point, got %q then %q", id, id2)
	}
}

func TestResolveProviderNativeComposite(t *testing.T) {
	r := New(nil, nil)
	if err := r.Register(twoProviderModel()); err != nil {
		t.Fatal(err)
	}
	id, ok := r.Resolve("fireworks/accounts/fireworks/models/llama-v3p3-70b-instruct")
	if !ok || id != "llama-3.3-70b" {
		t.Fatalf("expected provider/native composite resolution, got %q ok=%v", id, ok)
	}
}

func TestAliasCollisionFirstWriterWins(t *testing.T) {
	r := New(nil, nil)
	if err := r.Register(twoProviderModel()); err != nil {
		t.Fatal(err)
	}
	if err := r.Register(CanonicalModel{
		ID:       "some-other-model",
		Bindings: []ProviderBinding{{Provider: "together", NativeID: "other", Priority: 1, Enabled: true}},
	}); err != nil {
		t.Fatal(err)
	}
	r.AddAlias("llama-3.3-70b-instruct", "some-other-model")
	id, _ := r.Resolve("llama-3.3-70b-instruct")
	if id != "llama-3.3-70b" {
		t.Fatalf("expected first-writer-wins to keep original alias target, got %q", id)
	}
}

func TestExportImportRoundTrip(t *testing.T) {
	r := New(nil, nil)
	if err := r.Register(twoProviderModel()); err != nil {
		t.Fatal(err)
	}
	snap := r.Export()

	r2 := New(nil, nil)
	if err := r2.Import(snap); err != nil {
		t.Fatalf("Import: %v", err)
	}
	cm, ok := r2.Get("llama-3.3-70b")
	if !ok || len(cm.Bindings) != 2 {
		t.Fatalf("expected round-tripped model with 2 bindings, got %+v ok=%v", cm, ok)
	}
	if _, ok := r2.Resolve("llama-3.3-70b-instruct"); !ok {
		t.Fatal("expected alias to survive export/import round trip")
	}
}
