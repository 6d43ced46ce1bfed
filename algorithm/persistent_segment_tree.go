package algorithm

// RangeUpdate 一次区间修改：对压缩后的闭区间 [Start, End] 整体加上 Delta。
type RangeUpdate struct {
	Start int
	End   int
	Delta int
}

// PSTNode 可持久化区间树节点。
// 节点一旦写入 nodes 即不再修改 (首个版本构建期间除外)。
type PSTNode struct {
	Lo, Hi   int // 节点覆盖的压缩区间 [Lo, Hi]。
	Modifier int // 完整覆盖本节点区间的修改量之和。
	L, R     int // 左右子节点索引，叶子为 0。
}

// PersistentSegmentTree 可持久化区间树 (路径复制)。
// 每个版本对应一次 RangeUpdate，新版本只复制受影响路径上的 O(log N) 个节点，
// 其余子树与前一版本共享。
type PersistentSegmentTree struct {
	roots []int     // 每个版本的根节点索引。
	nodes []PSTNode // 静态数组模拟动态节点，0 号节点作为空节点。
	n     int       // 叶子区间 [0, n-1]。
}

// NewPersistentSegmentTree 创建一个叶子区间为 [0, n-1] 的空树。
// maxOp: 预估的版本数，用于分配初始内存。
func NewPersistentSegmentTree(n, maxOp int) *PersistentSegmentTree {
	// 初始树 2N 个节点，之后每个版本 O(log N)。
	expectedNodes := 2*n + maxOp*4*(bitLen(n)+1)
	return &PersistentSegmentTree{
		roots: make([]int, 0, maxOp),
		nodes: make([]PSTNode, 1, expectedNodes+1),
		n:     n,
	}
}

// BuildVersionChain 依次应用 updates，为每个 update 生成一个版本。
// 叶子区间取 [0, len(updates)-1]。
func BuildVersionChain(updates []RangeUpdate) *PersistentSegmentTree {
	t := NewPersistentSegmentTree(len(updates), len(updates))
	for _, u := range updates {
		t.PushVersion(u)
	}
	return t
}

func bitLen(n int) int {
	l := 0
	for n > 0 {
		l++
		n >>= 1
	}
	return l
}

// build 构建初始空树 (修改量全 0)。
func (t *PersistentSegmentTree) build(lo, hi int) int {
	if lo > hi {
		return 0
	}
	idx := len(t.nodes)
	t.nodes = append(t.nodes, PSTNode{Lo: lo, Hi: hi})
	if lo < hi {
		mid := (lo + hi) / 2
		left := t.build(lo, mid)
		right := t.build(mid+1, hi)
		t.nodes[idx].L = left
		t.nodes[idx].R = right
	}
	return idx
}

// applyInPlace 直接修改 idx 子树，仅用于构建第一个版本。
func (t *PersistentSegmentTree) applyInPlace(idx int, u RangeUpdate) {
	if idx == 0 {
		return
	}
	node := &t.nodes[idx]
	if u.Start > node.Hi || u.End < node.Lo {
		return
	}
	if u.Start <= node.Lo && u.End >= node.Hi {
		node.Modifier += u.Delta
		return
	}
	left, right := node.L, node.R
	t.applyInPlace(left, u)
	t.applyInPlace(right, u)
}

// copyOnWrite 在旧版本 prev 的基础上应用 u，返回新子树根。
// 与 u 不相交的子树原样返回，不做复制。
func (t *PersistentSegmentTree) copyOnWrite(prev int, u RangeUpdate) int {
	if prev == 0 {
		return 0
	}
	old := t.nodes[prev]
	if u.Start > old.Hi || u.End < old.Lo {
		return prev
	}

	idx := len(t.nodes)
	t.nodes = append(t.nodes, old) // 复制旧节点，子节点引用保持共享。
	if u.Start <= old.Lo && u.End >= old.Hi {
		t.nodes[idx].Modifier += u.Delta
		return idx
	}

	left := t.copyOnWrite(old.L, u)
	right := t.copyOnWrite(old.R, u)
	t.nodes[idx].L = left
	t.nodes[idx].R = right
	return idx
}

// PushVersion 基于最新版本应用 u，产生新版本。
func (t *PersistentSegmentTree) PushVersion(u RangeUpdate) {
	if len(t.roots) == 0 {
		root := t.build(0, t.n-1)
		t.applyInPlace(root, u)
		t.roots = append(t.roots, root)
		return
	}
	newRoot := t.copyOnWrite(t.roots[len(t.roots)-1], u)
	t.roots = append(t.roots, newRoot)
}

// QueryLeaf 返回版本 v 中从根到 leaf 路径上修改量之和。
// 版本不存在或 leaf 越界时返回 0。
func (t *PersistentSegmentTree) QueryLeaf(v, leaf int) int {
	if v < 0 || v >= len(t.roots) {
		return 0
	}
	sum := 0
	idx := t.roots[v]
	for idx != 0 {
		node := &t.nodes[idx]
		if leaf < node.Lo || leaf > node.Hi {
			break
		}
		sum += node.Modifier
		if leaf <= (node.Lo+node.Hi)/2 {
			idx = node.L
		} else {
			idx = node.R
		}
	}
	return sum
}

// Versions 返回已生成的版本数。
func (t *PersistentSegmentTree) Versions() int {
	return len(t.roots)
}

// NodeCount 返回已分配的节点数 (不含 0 号空节点)。
func (t *PersistentSegmentTree) NodeCount() int {
	return len(t.nodes) - 1
}

// Leaves 返回叶子数。
func (t *PersistentSegmentTree) Leaves() int {
	return t.n
}

// Root 返回版本 v 的根节点索引，版本不存在时返回 0。
func (t *PersistentSegmentTree) Root(v int) int {
	if v < 0 || v >= len(t.roots) {
		return 0
	}
	return t.roots[v]
}

// Node 返回 idx 处节点的副本。
func (t *PersistentSegmentTree) Node(idx int) PSTNode {
	return t.nodes[idx]
}
