package mesh

import "sort"

// spreadBits 把低 32 位隔位展开到偶数位
func spreadBits(v uint64) uint64 {
	v &= 0xffffffff
	v = (v | v<<16) & 0x0000ffff0000ffff
	v = (v | v<<8) & 0x00ff00ff00ff00ff
	v = (v | v<<4) & 0x0f0f0f0f0f0f0f0f
	v = (v | v<<2) & 0x3333333333333333
	v = (v | v<<1) & 0x5555555555555555
	return v
}

// mortonKey 计算树内标度坐标的 Morton 键
func mortonKey(x, y int64) uint64 {
	return spreadBits(uint64(x)) | spreadBits(uint64(y))<<1
}

// leafAt 返回覆盖全局标度格点 (px, py) 的叶索引
//
// 叶序列按（树号，树内 Morton 键）升序排列且无缝铺满域，
// 覆盖任一格点的叶即键不大于该点键的最后一叶。
func (f *Forest) leafAt(px, py int64) int64 {
	tree := px / rootLen
	k := uint64(tree)<<treeKeyShift | mortonKey(px%rootLen, py)
	i := sort.Search(len(f.keys), func(j int) bool { return f.keys[j] > k })
	return int64(i - 1)
}
