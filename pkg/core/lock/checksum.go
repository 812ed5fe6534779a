package lock

import (
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/blake2b"

	"github.com/LENAX/async-actions/pkg/core/target"
)

// checksumSize BLAKE2b 摘要字节数，十六进制后为24个字符
const checksumSize = 12

// Checksum 计算目标对象的锁ID（对外导出）
// 对 (ID, 类型名, 命名空间) 做带长度前缀的 BLAKE2b 摘要，
// 相同输入在任意进程中结果一致，不同类型即使ID相同也不会冲突
func Checksum(ref target.Ref) string {
	h, err := blake2b.New(checksumSize, nil)
	if err != nil {
		// 仅在 size 非法时出错
		panic(fmt.Sprintf("创建blake2b摘要失败: %v", err))
	}
	for _, field := range []string{ref.ID, ref.Type, ref.Namespace} {
		fmt.Fprintf(h, "%d:%s;", len(field), field)
	}
	return hex.EncodeToString(h.Sum(nil))
}

// ObjectLockIDs 返回对象需要持有的锁ID列表（对外导出）
func ObjectLockIDs(obj target.Object) []string {
	return []string{Checksum(obj.TargetRef())}
}
