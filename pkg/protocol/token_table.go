package protocol

// singleByteTokens is indexed by the token byte. Entry 0 is unused because
// byte 0 is the empty-list marker.
var singleByteTokens = [...]string{
	"",
	"xmlstreamstart",
	"xmlstreamend",
	"s.whatsapp.net",
	"type",
	"participant",
	"from",
	"receipt",
	"id",
	"notification",
	"disappearing_mode",
	"status",
	"jid",
	"broadcast",
	"user",
	"devices",
	"device_hash",
	"to",
	"offline",
	"message",
	"result",
	"class",
	"xmlns",
	"duration",
	"notify",
	"iq",
	"t",
	"ack",
	"g.us",
	"enc",
	"urn:xmpp:whatsapp:push",
	"presence",
	"config_value",
	"picture",
	"verified_name",
	"config_code",
	"key-index-list",
	"contact",
	"mediatype",
	"routing_info",
	"edge_routing",
	"get",
	"read",
	"urn:xmpp:ping",
	"fallback_hostname",
	"0",
	"chatstate",
	"business_hours_config",
	"unavailable",
	"download_buckets",
	"skmsg",
	"verified_level",
	"composing",
	"handshake",
	"device-list",
	"media",
	"text",
	"fallback_ip4",
	"media_conn",
	"device",
	"creation",
	"location",
	"config",
	"item",
	"fallback_ip6",
	"count",
	"w:profile:picture",
	"image",
	"business",
	"2",
	"hostname",
	"call-creator",
	"display_name",
	"relaylatency",
	"platform",
	"abprops",
	"success",
	"msg",
	"offline_preview",
	"prop",
	"key-index",
	"v",
	"day_of_week",
	"pkmsg",
	"version",
	"1",
	"ping",
	"w:p",
	"download",
	"video",
	"set",
	"specific_hours",
	"props",
	"primary",
	"unknown",
	"hash",
	"commerce_experience",
	"last",
	"subscribe",
	"max_buckets",
	"call",
	"profile",
	"member_since_text",
	"close_time",
	"call-id",
	"sticker",
	"mode",
	"participants",
	"value",
	"query",
	"profile_options",
	"open_time",
	"code",
	"list",
	"host",
	"ts",
	"contacts",
	"upload",
	"lid",
	"preview",
	"update",
	"usync",
	"w:stats",
	"delivery",
	"auth_ttl",
	"context",
	"fail",
	"cart_enabled",
	"appdata",
	"category",
	"atn",
	"direct_connection",
	"decrypt-fail",
	"relay_id",
	"mmg-fallback.whatsapp.net",
	"target",
	"available",
	"name",
	"last_id",
	"mmg.whatsapp.net",
	"categories",
	"401",
	"is_new",
	"index",
	"tctoken",
	"ip4",
	"token_id",
	"latency",
	"recipient",
	"edit",
	"ip6",
	"add",
	"thumbnail-document",
	"26",
	"paused",
	"true",
	"identity",
	"stream:error",
	"key",
	"sidelist",
	"background",
	"audio",
	"3",
	"thumbnail-image",
	"biz-cover-photo",
	"cat",
	"gcm",
	"thumbnail-video",
	"error",
	"auth",
	"deny",
	"serial",
	"in",
	"registration",
	"thumbnail-link",
	"remove",
	"00",
	"gif",
	"thumbnail-gif",
	"tag",
	"capability",
	"multicast",
	"item-not-found",
	"description",
	"business_hours",
	"config_expo_key",
	"md-app-state",
	"expiration",
	"fallback",
	"ttl",
	"300",
	"md-msg-hist",
	"device_orientation",
	"out",
	"w:m",
	"open_24h",
	"side_list",
	"token",
	"inactive",
	"01",
	"document",
	"te2",
	"played",
	"encrypt",
	"msgr",
	"hide",
	"direct_path",
	"12",
	"state",
	"not-authorized",
	"url",
	"terminate",
	"signature",
	"status-revoke-delay",
	"02",
	"te",
	"linked_accounts",
	"trusted_contact",
	"timezone",
	"ptt",
	"kyc-id",
	"privacy_token",
	"readreceipts",
	"appointment_only",
	"address",
	"expected_ts",
	"privacy",
	"7",
	"android",
	"interactive",
	"device-identity",
	"enabled",
}

// doubleByteTokens holds the extended pages addressed by DICTIONARY_0..3.
var doubleByteTokens = [...][]string{
	{
		"attribute_padding",
		"1080",
		"03",
		"screen_height",
		"read-self",
		"active",
		"fbns",
		"protocol",
		"reaction",
		"screen_width",
		"heartbeat",
		"deviceid",
		"sync",
		"uploadfieldstat",
		"voip_settings",
		"retry",
		"priority",
		"longitude",
		"conflict",
		"false",
		"ig_professional",
		"replaced",
		"preaccept",
		"cover_photo",
		"uncompressed",
		"encopt",
		"ppic",
		"04",
		"passive",
		"status-revoke-drop",
		"keygen",
		"540",
		"offer",
		"rate",
		"opus",
		"latitude",
		"w:gp2",
		"ver",
		"4",
		"business_profile",
		"medium",
		"sender",
		"prev_v_id",
		"email",
		"website",
		"invited",
		"sign_credential",
		"05",
		"transport",
		"skey",
		"reason",
		"peer_abtest_bucket",
		"encrypt_v2",
		"appid",
		"refresh",
		"100",
		"06",
		"404",
		"101",
		"104",
		"107",
		"102",
		"109",
		"103",
		"member_add_mode",
		"105",
		"transaction-id",
		"110",
		"106",
		"outgoing",
		"108",
		"111",
		"tokens",
		"followers",
		"cell_size",
		"full_cell",
		"transaction",
		"ice",
		"keys",
		"terminating",
		"media_type",
		"frame_rate",
		"secure",
		"sample_rate",
		"ptt_playback_speed",
		"maxfpp",
		"enable_ptt_replay",
		"subject",
		"admin",
		"w:profile",
		"sender_lid",
		"recovery",
		"body",
		"history",
		"chat",
		"pair-device",
		"pair-success",
		"ref",
		"platform_type",
		"os",
		"os_version",
		"browser",
		"browser_version",
		"client_token",
		"server_token",
		"conversation",
		"announcement",
		"restrict",
		"creator",
		"creation_time",
		"locked",
		"ephemeral",
		"unlock",
		"revoke",
		"demote",
		"promote",
		"leave",
		"invite",
		"link",
		"linked_parent",
		"sub_group_suggestions",
		"allow_non_admin_sub_group_creation",
		"growth_locked",
		"incognito",
		"parent_group",
		"default_sub_group",
		"community",
		"dirty",
		"clean",
		"critical_block",
		"critical_unblock_low",
		"regular_high",
		"regular_low",
		"regular",
		"collection",
		"patch",
		"snapshot",
		"mutation",
		"operation",
		"version_hash",
		"mac",
		"index_mac",
		"value_mac",
		"key_id",
		"timestamp",
		"fingerprint",
		"raw_id",
		"current_index",
		"valid_indexes",
		"account_signature",
		"account_signature_key",
		"device_signature",
		"adv_encrypt",
		"hosted",
		"companion",
		"companion_platform",
		"companion_props",
		"qr",
		"pairing",
		"pairing_ref",
		"pair-device-sign",
		"link_code_companion_reg",
		"companion_server_auth_key_pub",
		"companion_hello",
		"companion_finish",
		"primary_ephemeral_pub_key",
		"wrapped_companion_ephemeral_pub",
		"wrapped_key_bundle",
		"companion_identity_public",
		"link_code_pairing_wrapped_primary_ephemeral_pub",
		"link_code_pairing_ref",
		"link_code_pairing_nonce",
		"phone_number",
		"verify",
		"request_code",
		"code_length",
		"expire",
		"retry_after",
		"blocklist",
		"block",
		"unblock",
		"mute",
		"unmute",
		"pin",
		"unpin",
		"archive",
		"unarchive",
		"star",
		"unstar",
		"label",
		"labels",
		"label_edit",
		"label_jid",
		"delete_for_me",
		"delete_chat",
		"clear_chat",
		"mark_chat_as_read",
		"push_name",
		"display_name_change",
		"status_privacy",
		"groupadd",
		"online",
		"last_seen",
		"calladd",
		"messages",
		"everyone",
		"contacts_except",
		"none",
		"match_last_seen",
		"all",
		"blacklist",
		"whitelist",
		"dhash",
		"disappearing",
		"ephemeral_setting",
		"initiator",
		"settings",
		"poll",
		"poll_vote",
		"poll_creation",
		"option",
		"selectable_options_count",
		"event_response",
		"newsletter",
		"subscribers",
		"verification",
		"mute_state",
		"reaction_codes",
		"view_count",
		"server_id",
		"live_updates",
		"thread_metadata",
		"invite_code",
		"viewer_metadata",
		"role",
		"owner",
		"subscriber",
		"guest",
		"geo",
		"country_code",
		"language",
		"call_log",
		"call_result",
		"call_duration",
		"accept",
		"reject",
		"relay",
		"relay_election",
		"enc_rekey",
		"video_state",
		"audio_state",
		"te_addr",
		"net",
		"medium_enc",
		"voip",
		"group_call",
	},
	{
		"call_link",
		"caller_pn",
		"caller_country_code",
		"joinable",
		"audio_duration",
		"streaming_sidecar",
		"file_sha256",
		"file_enc_sha256",
		"file_length",
		"media_key",
		"media_key_timestamp",
		"direct_path_url",
		"mimetype",
		"caption",
		"width",
		"height",
		"seconds",
		"page_count",
		"jpeg_thumbnail",
		"file_name",
		"title",
		"waveform",
		"gif_playback",
		"view_once",
	},
}
