package docstore

import "github.com/redis/go-redis/v9"

// KEYS: doc, array index, collection. ARGV: id, field/value pairs.
var setScript = redis.NewScript(`
local arrays = redis.call('SMEMBERS', KEYS[2])
for _, f in ipairs(arrays) do
	redis.call('DEL', KEYS[1] .. '#' .. f)
end
redis.call('DEL', KEYS[2], KEYS[1])
redis.call('HSET', KEYS[1], unpack(ARGV, 2))
redis.call('HINCRBY', KEYS[1], '_rev', 1)
redis.call('SADD', KEYS[3], ARGV[1])
return 1
`)

// KEYS: doc. ARGV: field/value pairs.
var updateScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
	return false
end
redis.call('HSET', KEYS[1], unpack(ARGV))
redis.call('HINCRBY', KEYS[1], '_rev', 1)
return 1
`)

// KEYS: doc, array, array index. ARGV: field, members...
var arrayUnionScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
	return false
end
redis.call('SADD', KEYS[3], ARGV[1])
redis.call('SADD', KEYS[2], unpack(ARGV, 2))
redis.call('HINCRBY', KEYS[1], '_rev', 1)
return redis.call('SCARD', KEYS[2])
`)

// KEYS: doc. ARGV: field, delta.
var incrementScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
	return false
end
local n = redis.call('HINCRBY', KEYS[1], ARGV[1], ARGV[2])
redis.call('HINCRBY', KEYS[1], '_rev', 1)
return n
`)

// KEYS: doc, array index, collection. ARGV: id.
var deleteScript = redis.NewScript(`
local arrays = redis.call('SMEMBERS', KEYS[2])
for _, f in ipairs(arrays) do
	redis.call('DEL', KEYS[1] .. '#' .. f)
end
redis.call('DEL', KEYS[2])
redis.call('SREM', KEYS[3], ARGV[1])
return redis.call('DEL', KEYS[1])
`)
