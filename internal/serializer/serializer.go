package serializer

// Serializer 抽象了“对象 <-> 字节序列”的序列化能力。
//
// 调用方通过接口注入具体实现：操作码格式用于保存对象层级，JSON 用于调试输出与配置类数据。
type Serializer interface {
	// Marshal 将对象编码为字节序列。
	Marshal(v any) ([]byte, error)

	// Unmarshal 将字节序列解码到目标对象。
	//
	// v 通常为指针类型，用于接收解码结果。
	Unmarshal(data []byte, v any) error
}
