// Copyright (c) 2026, Mirrorscene Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package collab

import (
	"log/slog"
	"slices"

	"github.com/mirrorscene/mirrorscene/compfind"
	"github.com/mirrorscene/mirrorscene/replica"
	"github.com/mirrorscene/mirrorscene/scene"
)

// Replica type tags owned by the built-in translators. Nodes replicate
// under their registered scene type name, resolved through the base chain
// down to nodeTypeTag; components all replicate under componentTypeTag
// with the concrete component type carried as a property.
const (
	nodeTypeTag      = "NodeBase"
	componentTypeTag = "component"
)

// componentMeta names the component replica properties that describe the
// component itself rather than its data fields.
var componentMeta = map[string]bool{
	"type":         true,
	"stableId":     true,
	"fileId":       true,
	"sourceFileId": true,
}

// NodeTranslator replicates scene nodes: any native implementing
// [scene.Node]. The stable identifier travels as the stableId property and
// drives identity conflict resolution between concurrent creations.
type NodeTranslator struct {
	Base
}

func newNodeTranslator(eng *Engine) *NodeTranslator {
	nt := &NodeTranslator{}
	nt.eng = eng
	nt.Hooks = map[string]FieldHook{
		"stableId": {Apply: applyStableID, Send: sendStableID},
	}
	return nt
}

func (nt *NodeTranslator) TypeTag() string {
	return nodeTypeTag
}

// TryCreate claims any valid scene node, creating an optimistic replica
// under the parent's replica. The node's concrete scene type is chained to
// the base node type so the dispatcher can resolve it later.
func (nt *NodeTranslator) TryCreate(native scene.Object) *replica.Object {
	node, ok := native.(scene.Node)
	if !ok || !node.AsScene().IsValid() {
		return nil
	}
	st := scene.TypeOf(node)
	if st.Name != nodeTypeTag && st.Base == "" {
		st.Base = nodeTypeTag
	}
	rep, _ := nt.eng.Registry.GetOrCreate(node, st.Name, 0)
	nb := node.AsScene()
	rep.Props.Set("name", nb.Name)
	rep.Props.Set("stableId", nb.StableID())
	rep.TemplatePath = nb.TemplatePath
	if p := nb.Parent; p != nil {
		if prep, ok := nt.eng.Registry.ByNative(p); ok {
			rep.SetParent(prep, p.AsScene().IndexOf(node))
		}
	}
	return rep
}

// OnCreate materializes the native node for the given replica: template
// instances clone their template's native tree (or get a placeholder until
// the template resolves), everything else constructs the registered scene
// type. Children and components are materialized recursively.
func (nt *NodeTranslator) OnCreate(rep *replica.Object, childIndex int) {
	if node := nt.eng.nodeOf(rep); node != nil {
		if !node.AsScene().Transient {
			nt.ApplyProperties(rep)
			return
		}
		// a pending placeholder: replace it with the real thing
		node.AsScene().Delete()
	}
	var node scene.Node
	if path := rep.TemplatePath; path != "" && !rep.NoTemplate && nt.eng.Template(path) != rep {
		node = nt.instantiate(rep, path)
		if node == nil {
			nt.eng.DeferInstance(path, rep)
			node = nt.placeholder(rep)
		}
	}
	if node == nil {
		node = nt.newNode(rep.Type())
	}
	nb := node.AsScene()
	if name, ok := rep.Props.Get("name"); ok {
		if s, _ := name.(string); s != "" {
			nb.Name = s
		}
	}
	if stable, ok := rep.Props.Get("stableId"); ok {
		if s, _ := stable.(string); s != "" {
			nb.SetStableID(s)
		}
	}
	nb.TemplatePath = rep.TemplatePath

	parent := nt.parentNode(rep)
	pb := parent.AsScene()
	at := childIndex
	if at < 0 || at > len(pb.Children) {
		at = len(pb.Children)
	}
	pb.InsertChild(node, at)

	nt.eng.Registry.Bind(node, rep)
	nt.ApplyProperties(rep)
	for _, child := range rep.Children() {
		nt.eng.Dispatcher.recreateNative(child)
	}
}

// parentNode returns the native node to attach a materialized replica
// under, falling back to the engine's scene root.
func (nt *NodeTranslator) parentNode(rep *replica.Object) scene.Node {
	if p := rep.Parent(); p != nil {
		if node := nt.eng.nodeOf(p); node != nil {
			return node
		}
	}
	return nt.eng.Root
}

// newNode constructs a native node of the given registered scene type,
// or a plain base node if the type is not known to this participant.
func (nt *NodeTranslator) newNode(typ string) scene.Node {
	if st := scene.TypeByName(typ); st != nil && st.New != nil {
		return st.New()
	}
	slog.Debug("collab.NodeTranslator: unknown scene type", "type", typ)
	return scene.New[*scene.NodeBase]()
}

// placeholder stands in for a template instance whose template is not
// resolvable yet.
func (nt *NodeTranslator) placeholder(rep *replica.Object) scene.Node {
	n := scene.New[*scene.NodeBase]()
	n.Name = "pending:" + rep.TemplatePath
	n.Transient = true
	return n
}

// instantiate clones the native tree of the template asset at the given
// path, or returns nil if the template has no native side yet. The
// instance's revision snapshot is taken at materialization time.
func (nt *NodeTranslator) instantiate(rep *replica.Object, path string) scene.Node {
	troot := nt.eng.Template(path)
	if troot == nil {
		return nil
	}
	tn := nt.eng.nodeOf(troot)
	if tn == nil {
		return nil
	}
	node := tn.AsScene().Clone()
	node.AsScene().TemplatePath = path
	if rep.InstanceRevisions == nil {
		rep.InstanceRevisions = nt.eng.Revisions.Snapshot(path)
	}
	return node
}

// OnDelete destroys the native subtree of a remotely deleted node.
func (nt *NodeTranslator) OnDelete(rep *replica.Object) {
	rep.Walk(func(o *replica.Object) {
		if o != rep {
			nt.eng.Registry.UnbindReplica(o)
		}
	})
	if node := nt.eng.nodeOf(rep); node != nil {
		node.AsScene().Delete()
	}
}

// applyStableID resolves the stableId property: an unknown identifier is
// adopted by the native handle; a known identifier bound to a different
// replica is an identity conflict, collapsed in favor of the
// server-confirmed side.
func applyStableID(eng *Engine, rep *replica.Object, native scene.Object, value any) bool {
	stable, ok := value.(string)
	if !ok || stable == "" {
		return true
	}
	if native.StableID() == stable {
		return true
	}
	other, ok := eng.Registry.ByStable(stable)
	if !ok {
		if node, ok := native.(scene.Node); ok && node.AsScene().IsValid() {
			node.AsScene().SetStableID(stable)
			eng.Registry.Bind(native, rep)
		}
		return true
	}
	if other == rep {
		return true
	}
	winner, loser := rep, other
	if other.Confirmed && !rep.Confirmed {
		winner, loser = other, rep
	}
	eng.collapseDuplicate(winner, loser)
	return true
}

func sendStableID(eng *Engine, rep *replica.Object, native scene.Object) (any, bool) {
	return native.StableID(), true
}

// ComponentTranslator replicates node components. All components share one
// replica type tag; the concrete component type, template identity, and
// stable identifier travel as meta properties alongside the data fields.
type ComponentTranslator struct {
	Base

	// finders holds one component finder per owning node for the duration
	// of a pass, so consecutive materializations on one node share a
	// matching snapshot and out-of-order arrival is detectable.
	finders map[scene.Node]*compfind.Finder
}

func newComponentTranslator(eng *Engine) *ComponentTranslator {
	ct := &ComponentTranslator{finders: map[scene.Node]*compfind.Finder{}}
	ct.eng = eng
	return ct
}

func (ct *ComponentTranslator) TypeTag() string {
	return componentTypeTag
}

// TryCreate claims any valid native component, creating an optimistic
// replica under the owning node's replica.
func (ct *ComponentTranslator) TryCreate(native scene.Object) *replica.Object {
	comp, ok := native.(*scene.Component)
	if !ok || !comp.IsValid() {
		return nil
	}
	rep, _ := ct.eng.Registry.GetOrCreate(comp, componentTypeTag, 0)
	rep.Props.Set("type", comp.Type)
	rep.Props.Set("stableId", comp.StableID())
	if comp.FileID != 0 {
		rep.Props.Set("fileId", comp.FileID)
	}
	if comp.SourceFileID != 0 {
		rep.Props.Set("sourceFileId", comp.SourceFileID)
	}
	if comp.Owner != nil {
		if prep, ok := ct.eng.Registry.ByNative(comp.Owner); ok {
			rep.SetParent(prep, -1)
		}
	}
	return rep
}

// OnCreate materializes the native component on the owning node, matching
// an existing unclaimed component by type and template identity before
// creating a new one. Each native component is claimed by at most one
// replica.
func (ct *ComponentTranslator) OnCreate(rep *replica.Object, childIndex int) {
	if native, ok := ct.eng.Registry.ByReplica(rep); ok {
		if comp, ok := native.(*scene.Component); ok && comp.IsValid() {
			ct.ApplyProperties(rep)
			return
		}
	}
	parent := rep.Parent()
	if parent == nil {
		return
	}
	owner := ct.eng.nodeOf(parent)
	if owner == nil {
		return
	}
	typName := propString(rep, "type")
	fileID := propInt64(rep, "fileId")
	sourceID := propInt64(rep, "sourceFileId")

	finder := ct.finderFor(owner)
	var comp *scene.Component
	for {
		c := finder.Find(typName, sourceID, fileID)
		if c == nil {
			break
		}
		if existing, ok := ct.eng.Registry.ByNative(c); !ok || existing == rep {
			comp = c
			break
		}
	}
	if comp == nil {
		comp = scene.NewComponent(typName)
		comp.FileID = fileID
		comp.SourceFileID = sourceID
		owner.AsScene().AddComponent(comp)
	}
	if s := propString(rep, "stableId"); s != "" {
		comp.SetStableID(s)
	}
	ct.eng.Registry.Bind(comp, rep)
	ct.ApplyProperties(rep)
	if !finder.InOrder {
		ct.resyncOrder(owner, parent)
	}
}

// finderFor returns the pass-scoped finder for the given owner, built from
// the owner's current component list on first use.
func (ct *ComponentTranslator) finderFor(owner scene.Node) *compfind.Finder {
	f := ct.finders[owner]
	if f == nil {
		f = compfind.New(owner)
		ct.finders[owner] = f
	}
	return f
}

// resyncOrder reorders the owner's native components to the replica child
// order after components were claimed out of order. Components with no
// replica keep their relative order after the replicated ones.
func (ct *ComponentTranslator) resyncOrder(owner scene.Node, parent *replica.Object) {
	nb := owner.AsScene()
	ordered := make([]*scene.Component, 0, len(nb.Components))
	for _, child := range parent.Children() {
		native, ok := ct.eng.Registry.ByReplica(child)
		if !ok {
			continue
		}
		if comp, ok := native.(*scene.Component); ok && comp.IsValid() {
			ordered = append(ordered, comp)
		}
	}
	for _, c := range nb.Components {
		if !slices.Contains(ordered, c) {
			ordered = append(ordered, c)
		}
	}
	nb.Components = ordered
}

// endPass drops the pass-scoped finder snapshots.
func (ct *ComponentTranslator) endPass() {
	clear(ct.finders)
}

func (ct *ComponentTranslator) SessionEnded() {
	clear(ct.finders)
}

// ApplyProperties writes every data property to the native component,
// skipping the meta properties. Unlike nodes, components accept fields
// they have never seen, so the generic field enumeration is not used.
func (ct *ComponentTranslator) ApplyProperties(rep *replica.Object) {
	comp := ct.component(rep)
	if comp == nil {
		return
	}
	for _, p := range rep.Props.Order {
		if componentMeta[p.Name] {
			continue
		}
		comp.SetData(p.Name, fromReplicaValue(ct.eng, p.Value))
	}
}

// OnPropertyChange applies one server data change to the native component.
func (ct *ComponentTranslator) OnPropertyChange(rep *replica.Object, path replica.Path, value any) {
	comp := ct.component(rep)
	if comp == nil {
		return
	}
	root := path[0].Name
	if componentMeta[root] {
		return
	}
	if v, ok := rep.Props.Get(root); ok {
		comp.SetData(root, fromReplicaValue(ct.eng, v))
	}
}

// OnDelete destroys the native component.
func (ct *ComponentTranslator) OnDelete(rep *replica.Object) {
	if comp := ct.component(rep); comp != nil {
		comp.Destroy()
	}
}

// component returns the valid native component bound to the given replica.
func (ct *ComponentTranslator) component(rep *replica.Object) *scene.Component {
	native, ok := ct.eng.Registry.ByReplica(rep)
	if !ok {
		return nil
	}
	comp, ok := native.(*scene.Component)
	if !ok || !comp.IsValid() {
		return nil
	}
	return comp
}

// propString returns the named property as a string, or "".
func propString(rep *replica.Object, name string) string {
	v, _ := rep.Props.Get(name)
	s, _ := v.(string)
	return s
}

// propInt64 returns the named property as an int64, tolerating the numeric
// types a JSON transport produces.
func propInt64(rep *replica.Object, name string) int64 {
	v, _ := rep.Props.Get(name)
	switch tv := v.(type) {
	case int64:
		return tv
	case int:
		return int64(tv)
	case float64:
		return int64(tv)
	}
	return 0
}
