package systems

import (
	"github.com/cockroachdb/errors"

	"github.com/spaghettifunk/nova/engine/assets"
	"github.com/spaghettifunk/nova/engine/renderer/metadata"
)

// ShaderSource provides compiled SPIR-V shaders by asset name.
type ShaderSource interface {
	LoadShader(name string) ([]byte, error)
	// Watch calls fn whenever the named shader changes. The returned function stops watching.
	Watch(name string, fn func()) (cancel func())
}

// AssetShaders reads shaders through an asset manager and follows their changes on disk.
type AssetShaders struct {
	Assets *assets.AssetManager
}

func (s AssetShaders) LoadShader(name string) ([]byte, error) {
	res, err := s.Assets.LoadAsset(name, metadata.ResourceTypeShader)
	if err != nil {
		return nil, err
	}
	code, ok := res.Data.([]byte)
	if !ok {
		return nil, errors.AssertionFailedf("shader resource %s holds %T", name, res.Data)
	}
	return code, nil
}

func (s AssetShaders) Watch(name string, fn func()) func() {
	id := s.Assets.Subscribe(name, func(string) { fn() })
	return func() { s.Assets.Unsubscribe(id) }
}

// StaticShaders serves shaders from memory; they never change.
type StaticShaders map[string][]byte

func (s StaticShaders) LoadShader(name string) ([]byte, error) {
	code, ok := s[name]
	if !ok {
		return nil, errors.Wrapf(assets.ErrAssetNotFound, "%s", name)
	}
	return code, nil
}

func (s StaticShaders) Watch(string, func()) func() {
	return func() {}
}
