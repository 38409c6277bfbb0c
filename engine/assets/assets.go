package assets

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"

	"github.com/spaghettifunk/nova/engine/assets/loaders"
	"github.com/spaghettifunk/nova/engine/core"
	"github.com/spaghettifunk/nova/engine/renderer/metadata"
)

var ErrAssetNotFound = errors.New("asset not found")

type AssetInfo struct {
	Path       string
	Type       metadata.ResourceType
	LastLoaded time.Time
}

// ChangeFunc is called from the watcher goroutine when an asset changed on disk.
type ChangeFunc func(name string)

type AssetManager struct {
	root    string
	assets  map[string]AssetInfo
	loaders map[metadata.ResourceType]Loader

	subscribers map[string]map[uuid.UUID]ChangeFunc
	bus         *core.EventBus

	mutex sync.RWMutex

	fsnotify *fsnotify.Watcher
	isClosed bool
}

// NewAssetManager indexes every known asset under root. Names are slash separated paths relative to root.
func NewAssetManager(root string) (*AssetManager, error) {
	am := &AssetManager{
		root:        root,
		assets:      make(map[string]AssetInfo),
		loaders:     make(map[metadata.ResourceType]Loader),
		subscribers: make(map[string]map[uuid.UUID]ChangeFunc),
	}
	// Register loaders
	am.registerLoader(metadata.ResourceTypeShader, &loaders.ShaderLoader{})
	am.registerLoader(metadata.ResourceTypeBinary, &loaders.BinaryLoader{})

	if err := am.watchRecursive(root); err != nil {
		return nil, errors.Wrapf(err, "failed to index assets in %s", root)
	}
	core.LogDebug("indexed %d assets in %s", len(am.assets), root)
	return am, nil
}

// Register loaders for each asset type
func (am *AssetManager) registerLoader(assetType metadata.ResourceType, loader Loader) {
	am.loaders[assetType] = loader
}

func (am *AssetManager) Has(name string) bool {
	am.mutex.RLock()
	defer am.mutex.RUnlock()
	_, ok := am.assets[name]
	return ok
}

// Load an asset using the appropriate loader
func (am *AssetManager) LoadAsset(name string, resourceType metadata.ResourceType) (*metadata.Resource, error) {
	am.mutex.Lock()
	asset, exists := am.assets[name]
	if exists {
		asset.LastLoaded = time.Now()
		am.assets[name] = asset
	}
	am.mutex.Unlock()
	if !exists {
		return nil, errors.Wrapf(ErrAssetNotFound, "%s", name)
	}
	if asset.Type != resourceType {
		return nil, errors.Newf("asset %s is a %s resource, not %s", name, asset.Type, resourceType)
	}

	loader, loaderExists := am.loaders[asset.Type]
	if !loaderExists {
		return nil, errors.Newf("no loader registered for asset type: %s", asset.Type)
	}
	return loader.Load(asset.Path, resourceType, map[string]string{"name": name})
}

func (am *AssetManager) UnloadAsset(asset *metadata.Resource) error {
	loader, ok := am.loaders[asset.Type]
	if !ok {
		return errors.Newf("no loader registered for asset type: %s", asset.Type)
	}
	return loader.Unload(asset)
}

// SetEventBus makes the watcher fire EVENT_CODE_ASSET_CHANGED for every changed asset.
func (am *AssetManager) SetEventBus(bus *core.EventBus) {
	am.mutex.Lock()
	defer am.mutex.Unlock()
	am.bus = bus
}

// Subscribe registers fn to be called whenever the named asset is written.
func (am *AssetManager) Subscribe(name string, fn ChangeFunc) uuid.UUID {
	id := uuid.New()
	am.mutex.Lock()
	defer am.mutex.Unlock()
	if am.subscribers[name] == nil {
		am.subscribers[name] = make(map[uuid.UUID]ChangeFunc)
	}
	am.subscribers[name][id] = fn
	return id
}

func (am *AssetManager) Unsubscribe(id uuid.UUID) {
	am.mutex.Lock()
	defer am.mutex.Unlock()
	for name, subs := range am.subscribers {
		delete(subs, id)
		if len(subs) == 0 {
			delete(am.subscribers, name)
		}
	}
}

// Watch reports changes of the asset directory to subscribers until ctx is done.
func (am *AssetManager) Watch(ctx context.Context) error {
	am.mutex.Lock()
	if am.isClosed {
		am.mutex.Unlock()
		return errors.New("asset manager already closed")
	}
	fsWatch, err := fsnotify.NewWatcher()
	if err != nil {
		am.mutex.Unlock()
		return errors.Wrap(err, "failed to create file watcher")
	}
	am.fsnotify = fsWatch
	am.mutex.Unlock()
	defer am.Close()

	if err := am.watchRecursive(am.root); err != nil {
		return errors.Wrapf(err, "failed to watch %s", am.root)
	}
	core.LogInfo("watching %s for asset changes", am.root)

	for {
		select {
		case e, ok := <-fsWatch.Events:
			if !ok {
				return nil
			}
			am.handleEvent(e)
		case e, ok := <-fsWatch.Errors:
			if !ok {
				return nil
			}
			core.LogError("asset watcher: %s", e)
		case <-ctx.Done():
			return nil
		}
	}
}

func (am *AssetManager) handleEvent(e fsnotify.Event) {
	s, err := os.Stat(e.Name)
	if err == nil && s != nil && s.IsDir() {
		if e.Op&fsnotify.Create != 0 {
			if err := am.watchRecursive(e.Name); err != nil {
				core.LogWarn("failed to watch new directory %s: %s", e.Name, err)
			}
		}
		return
	}
	// Handle create or modify events
	if e.Op&(fsnotify.Create|fsnotify.Write) != 0 {
		if name, ok := am.handleFileEvent(e.Name); ok {
			am.notify(name)
		}
	}
	if e.Op&(fsnotify.Remove|fsnotify.Rename) != 0 {
		am.removeAsset(e.Name)
	}
}

func (am *AssetManager) notify(name string) {
	am.mutex.RLock()
	subs := make([]ChangeFunc, 0, len(am.subscribers[name]))
	for _, fn := range am.subscribers[name] {
		subs = append(subs, fn)
	}
	bus := am.bus
	am.mutex.RUnlock()

	if bus != nil {
		var ctx core.EventContext
		ctx.Data.C[0] = name
		bus.Fire(core.EVENT_CODE_ASSET_CHANGED, am, ctx)
	}
	if len(subs) > 0 {
		core.LogDebug("asset %s changed, notifying %d subscribers", name, len(subs))
	}
	for _, fn := range subs {
		fn(name)
	}
}

func (am *AssetManager) Close() error {
	am.mutex.Lock()
	defer am.mutex.Unlock()
	if am.isClosed {
		return nil
	}
	am.isClosed = true
	if am.fsnotify != nil {
		return am.fsnotify.Close()
	}
	return nil
}

// watchRecursive indexes every file under path and, once a watcher exists, adds every directory to it.
func (am *AssetManager) watchRecursive(path string) error {
	return filepath.Walk(path, func(walkPath string, fi os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if fi.IsDir() {
			if am.fsnotify == nil {
				return nil
			}
			return am.fsnotify.Add(walkPath)
		}
		am.handleFileEvent(walkPath)
		return nil
	})
}

// Handle the creation or modification of a file
func (am *AssetManager) handleFileEvent(path string) (string, bool) {
	assetType, ok := determineAssetType(path)
	if !ok {
		return "", false
	}
	name, err := am.nameOf(path)
	if err != nil {
		return "", false
	}

	am.mutex.Lock()
	defer am.mutex.Unlock()
	am.assets[name] = AssetInfo{
		Path: path,
		Type: assetType,
	}
	return name, true
}

// Remove the asset from the index if it was deleted
func (am *AssetManager) removeAsset(path string) {
	name, err := am.nameOf(path)
	if err != nil {
		return
	}
	am.mutex.Lock()
	defer am.mutex.Unlock()
	delete(am.assets, name)
}

func (am *AssetManager) nameOf(path string) (string, error) {
	rel, err := filepath.Rel(am.root, path)
	if err != nil {
		return "", err
	}
	return filepath.ToSlash(rel), nil
}

func determineAssetType(path string) (metadata.ResourceType, bool) {
	switch filepath.Ext(path) {
	case ".spv":
		return metadata.ResourceTypeShader, true
	case ".bin":
		return metadata.ResourceTypeBinary, true
	default:
		return 0, false
	}
}
