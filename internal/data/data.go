package data

import (
	"context"
	"fmt"
	"io"
	"log"
	"path/filepath"

	"Chorus/internal/conf"
	"Chorus/internal/model"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/redis/go-redis/v9"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ReputationQueue 发布事件队列：Spawner/审核通过时 LPush，Worker BLPop 消费
const ReputationQueue = "task:agent_reputation"

// Data 结构体持有所有数据库句柄
type Data struct {
	DB     *gorm.DB
	Redis  *redis.Client
	Minio  *minio.Client
	Bucket string
}

func NewData(cfg *conf.Config) (*Data, func(), error) {
	// 1. 连接 Postgres
	dsn := cfg.Data.DatabaseSource
	pgDB, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open database: %v", err)
	}

	// 自动迁移：所有 struct 放进来，GORM 自动建表/补字段
	if err := Migrate(pgDB); err != nil {
		return nil, nil, fmt.Errorf("schema migration failed: %v", err)
	}
	log.Println("✅ 数据库表结构迁移完成")

	// 2. 初始化 Redis
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Data.RedisAddr,
		Password: cfg.Data.RedisPassword,
	})
	if _, err := rdb.Ping(context.Background()).Result(); err != nil {
		return nil, nil, fmt.Errorf("redis 连接失败: %v", err)
	}
	log.Println("✅ Redis 连接成功")

	// 3. 初始化 MinIO
	minioClient, err := minio.New(cfg.Data.MinioEndpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.Data.MinioAccessKey, cfg.Data.MinioSecretKey, ""),
		Secure: false,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("minio 初始化失败: %v", err)
	}

	// 自动创建 Bucket
	bucketName := cfg.Data.MinioBucket
	if bucketName == "" {
		bucketName = "chorus-avatars" // 兜底
	}
	exists, err := minioClient.BucketExists(context.Background(), bucketName)
	if err != nil {
		return nil, nil, fmt.Errorf("检查 MinIO Bucket 失败: %v", err)
	}
	if !exists {
		if err := minioClient.MakeBucket(context.Background(), bucketName, minio.MakeBucketOptions{}); err != nil {
			return nil, nil, fmt.Errorf("创建 MinIO Bucket 失败: %v", err)
		}
		log.Printf("🎉 MinIO Bucket '%s' 创建成功", bucketName)
	} else {
		log.Printf("✅ MinIO 连接成功 (Bucket '%s' 已存在)", bucketName)
	}

	d := &Data{
		DB:     pgDB,
		Redis:  rdb,
		Minio:  minioClient,
		Bucket: bucketName,
	}

	// 构造清理函数
	cleanup := func() {
		log.Println("正在关闭数据层资源...")
		if sqlDB, err := d.DB.DB(); err == nil {
			sqlDB.Close()
		}
		d.Redis.Close()
	}

	return d, cleanup, nil
}

// Migrate 执行自动迁移，测试里也会对 sqlite 调用
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&model.User{},
		&model.Organization{},
		&model.OrganizationMember{}, // 权限表
		&model.Post{},
		&model.AgentProfile{},  // 人设
		&model.AgentPolicy{},   // 组织策略
		&model.AgentAction{},   // 生成动作
		&model.OrgUsageDaily{}, // 每日用量
	)
}

// IncrUsage 原子累加每日用量计数
// 用 ON CONFLICT DO UPDATE + 表达式累加，避免并发下读-改-写丢更新
// 可以在外部事务 (tx) 里调用，保证与动作落库同一事务边界
func IncrUsage(tx *gorm.DB, orgID uint, day string, spawned, published int64) error {
	row := &model.OrgUsageDaily{
		OrgID:            orgID,
		Day:              day,
		ActionsSpawned:   spawned,
		ActionsPublished: published,
	}
	return tx.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "org_id"}, {Name: "day"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"actions_spawned":   gorm.Expr("actions_spawned + ?", spawned),
			"actions_published": gorm.Expr("actions_published + ?", published),
		}),
	}).Create(row).Error
}

// UploadAvatar 上传头像到 MinIO，返回对象名
func (d *Data) UploadAvatar(ctx context.Context, reader io.Reader, size int64, fileName string, contentType string) (string, error) {
	ext := filepath.Ext(fileName)
	objectName := fmt.Sprintf("avatars/%s%s", uuid.New().String(), ext)

	_, err := d.Minio.PutObject(ctx, d.Bucket, objectName, reader, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return "", fmt.Errorf("MinIO 上传失败: %v", err)
	}
	return objectName, nil
}

// GetAvatarStream 获取头像文件流
func (d *Data) GetAvatarStream(ctx context.Context, objectName string) (*minio.Object, int64, error) {
	obj, err := d.Minio.GetObject(ctx, d.Bucket, objectName, minio.GetObjectOptions{})
	if err != nil {
		return nil, 0, err
	}
	stat, err := obj.Stat()
	if err != nil {
		obj.Close()
		return nil, 0, err
	}
	return obj, stat.Size, nil
}
